package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hark/internal/protocol"
	"hark/internal/storage"
)

// SnapshotSource exposes the persisted broadcaster state; the sqlite
// store implements it.
type SnapshotSource interface {
	LatestSnapshot() (time.Time, []byte, bool, error)
	ListRecordings(limit int) ([]storage.Recording, error)
}

// StatusFunc returns the daemon status document served at /api/status.
type StatusFunc func() any

func registerAPIRoutes(mux *http.ServeMux, snapshots SnapshotSource, status StatusFunc) {
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var doc any = map[string]string{"interface_version": protocol.InterfaceVersion}
		if status != nil {
			doc = status()
		}
		writeJSON(w, http.StatusOK, doc)
	})

	// The persisted snapshot lets a reconnecting client recover state
	// without replaying events.
	mux.HandleFunc("GET /api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if snapshots == nil {
			writeJSONError(w, http.StatusNotFound, "snapshot store not configured")
			return
		}
		takenAt, payload, ok, err := snapshots.LatestSnapshot()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("latest snapshot: %v", err))
			return
		}
		if !ok {
			writeJSONError(w, http.StatusNotFound, "no snapshot recorded yet")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Snapshot-Taken-At", takenAt.UTC().Format(time.RFC3339Nano))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	})

	mux.HandleFunc("GET /api/recordings", func(w http.ResponseWriter, r *http.Request) {
		if snapshots == nil {
			writeJSONError(w, http.StatusNotFound, "recording history not configured")
			return
		}
		recordings, err := snapshots.ListRecordings(100)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list recordings: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, recordings)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
