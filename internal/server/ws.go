package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hark/internal/protocol"
)

// Dispatcher routes one request frame to a handler; the rpc package
// provides the implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, line []byte) protocol.Response
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// registerWSRoute serves the bidirectional websocket channel: request
// frames in, response frames out, hub events interleaved. Each message
// is one JSON object, mirroring the line protocol.
func registerWSRoute(mux *http.ServeMux, hub *Hub, dispatcher Dispatcher, logger zerolog.Logger) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().
				Str("component", "ws").
				Err(err).
				Msg("upgrade failed")
			return
		}
		defer func() { _ = conn.Close() }()

		var writeMu sync.Mutex
		write := func(payload []byte) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(websocket.TextMessage, payload)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events := hub.Subscribe()
		defer hub.Unsubscribe(events)

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-events:
					if !ok {
						return
					}
					if err := write(msg); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		for {
			_, line, err := conn.ReadMessage()
			if err != nil {
				return
			}
			resp := dispatcher.Dispatch(ctx, line)
			payload, err := json.Marshal(resp)
			if err != nil {
				logger.Error().
					Str("component", "ws").
					Err(err).
					Msg("marshal response")
				continue
			}
			if err := write(payload); err != nil {
				return
			}
		}
	})
}
