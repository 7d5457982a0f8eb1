package transport

import (
	"bufio"
	"context"
	"io"

	"github.com/rs/zerolog"
)

// ServeStdio runs the single-client standard-stream adapter: one request
// per line in, one response per line out, in request order. It returns
// when the reader is exhausted or ctx is cancelled.
func ServeStdio(ctx context.Context, r io.Reader, w io.Writer, dispatcher Dispatcher, events EventSource, logger zerolog.Logger) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lw := &lineWriter{w: w}
	subscribed := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if connCtx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if id, ok := isSubscribe(line); ok {
			if !subscribed && events != nil {
				subscribed = true
				go forwardEvents(connCtx, events, lw, cancel)
			}
			if err := lw.writeResponse(subscribeAck(id)); err != nil {
				return err
			}
			continue
		}

		resp := dispatcher.Dispatch(connCtx, line)
		if err := lw.writeResponse(resp); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Warn().
			Str("component", "stdio").
			Err(err).
			Msg("read failed")
		return err
	}
	return nil
}
