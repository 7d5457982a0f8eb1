// Package transport accepts client connections and moves line-JSON
// frames between them and the dispatcher. Two channels are provided: a
// single-client standard-stream adapter that is always available, and a
// unix-socket server for multiple concurrent clients.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"hark/internal/protocol"
)

// Dispatcher routes one request line to a handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, line []byte) protocol.Response
}

// EventSource hands out event subscriptions; the server hub implements
// it.
type EventSource interface {
	Subscribe() chan []byte
	Unsubscribe(ch chan []byte)
}

// maxLineBytes bounds a single request frame.
const maxLineBytes = 1 << 20

// subscribeMethod flips a connection into event-push mode; it is handled
// by the transport, not the dispatcher, because subscription state is
// per connection.
const subscribeMethod = "events.subscribe"

// lineWriter serializes response and event frames onto one stream so
// they never interleave mid-line.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) writeLine(payload []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if _, err := lw.w.Write(payload); err != nil {
		return err
	}
	_, err := lw.w.Write([]byte{'\n'})
	return err
}

func (lw *lineWriter) writeResponse(resp protocol.Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		// The envelope itself failed to encode; fall back to a bare
		// internal error so the client still gets its one response.
		fallback := protocol.Fail(resp.ID, protocol.NewError(protocol.CodeInternal, "encode response: %v", err))
		payload, err = json.Marshal(fallback)
		if err != nil {
			return err
		}
	}
	return lw.writeLine(payload)
}

// forwardEvents pumps hub frames to the connection until ctx ends or a
// write fails.
func forwardEvents(ctx context.Context, events EventSource, lw *lineWriter, cancel context.CancelFunc) {
	ch := events.Subscribe()
	defer events.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := lw.writeLine(msg); err != nil {
				cancel()
				return
			}
		}
	}
}

func subscribeAck(id string) protocol.Response {
	return protocol.OK(id, map[string]bool{"subscribed": true})
}

// isSubscribe sniffs the method without full dispatch.
func isSubscribe(line []byte) (id string, ok bool) {
	var req protocol.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return "", false
	}
	return req.ID, req.Method == subscribeMethod
}
