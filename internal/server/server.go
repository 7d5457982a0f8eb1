package server

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Handler assembles the launcher-UI surface: the websocket channel plus
// a small read-only HTTP API for state recovery.
func Handler(hub *Hub, dispatcher Dispatcher, snapshots SnapshotSource, status StatusFunc, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	registerWSRoute(mux, hub, dispatcher, logger)
	registerAPIRoutes(mux, snapshots, status)
	return mux
}
