package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// SocketServer accepts concurrent clients over a unix domain socket.
// Each connection gets its own read/dispatch/write loop; one client's
// slow consumption never blocks another's requests.
type SocketServer struct {
	path       string
	listener   net.Listener
	dispatcher Dispatcher
	events     EventSource
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSocketServer binds the socket, replacing any stale file at path.
func NewSocketServer(ctx context.Context, path string, dispatcher Dispatcher, events EventSource, logger zerolog.Logger) (*SocketServer, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &SocketServer{
		path:       path,
		listener:   listener,
		dispatcher: dispatcher,
		events:     events,
		log:        logger,
		ctx:        serverCtx,
		cancel:     cancel,
	}, nil
}

// Serve starts accepting connections until Close or context
// cancellation.
func (s *SocketServer) Serve() {
	s.log.Debug().
		Str("component", "socket").
		Str("path", s.path).
		Msg("listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.log.Warn().
					Str("component", "socket").
					Err(err).
					Msg("accept failed")
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.handleConn(c)
			}(conn)
		}
	}()
}

// Close stops the server, waits for connection loops, and removes the
// socket file.
func (s *SocketServer) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.log.Warn().
			Str("component", "socket").
			Str("path", s.path).
			Err(err).
			Msg("remove socket file")
	}
}

// handleConn serves one client. Read failure or malformed input affects
// only this connection; global state is untouched.
func (s *SocketServer) handleConn(conn net.Conn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// Unblock the blocking read when the server shuts down.
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	lw := &lineWriter{w: conn}
	subscribed := false

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if id, ok := isSubscribe(line); ok {
			if !subscribed && s.events != nil {
				subscribed = true
				go forwardEvents(connCtx, s.events, lw, cancel)
			}
			if err := lw.writeResponse(subscribeAck(id)); err != nil {
				return
			}
			continue
		}

		resp := s.dispatcher.Dispatch(connCtx, line)
		if err := lw.writeResponse(resp); err != nil {
			return
		}
	}

	if err := scanner.Err(); err != nil && connCtx.Err() == nil {
		s.log.Debug().
			Str("component", "socket").
			Err(err).
			Msg("connection closed")
	}
}
