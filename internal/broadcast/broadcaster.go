// Package broadcast emits periodic daemon state snapshots so clients can
// render status without polling individual subsystems.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"hark/internal/cache"
	"hark/internal/protocol"
	"hark/internal/session"
	"hark/internal/task"
)

// defaultInterval paces the snapshot ticker when the config leaves it
// unset.
const defaultInterval = 2 * time.Second

// Publisher pushes an event frame to subscribers; the server hub
// implements it.
type Publisher interface {
	Publish(event string, payload any)
}

// SnapshotStore persists the latest snapshot for recovery after a
// client reconnect or daemon restart.
type SnapshotStore interface {
	SaveSnapshot(takenAt time.Time, payload []byte) error
}

// Snapshot is the full periodic state document.
type Snapshot struct {
	Timestamp        string             `json:"ts"`
	InterfaceVersion string             `json:"interface_version"`
	Sessions         []session.Snapshot `json:"sessions"`
	Tasks            []task.Task        `json:"tasks"`
	Cache            cache.Stats        `json:"cache"`
}

// Broadcaster samples the core subsystems on a ticker and publishes the
// combined snapshot. Sampling never blocks the subsystems for longer
// than their own read locks.
type Broadcaster struct {
	sessions *session.Manager
	tasks    *task.Manager
	cache    *cache.Cache
	hub      Publisher
	store    SnapshotStore
	interval time.Duration
	log      zerolog.Logger
}

func New(sessions *session.Manager, tasks *task.Manager, store *cache.Cache, hub Publisher, snapshots SnapshotStore, interval time.Duration, logger zerolog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Broadcaster{
		sessions: sessions,
		tasks:    tasks,
		cache:    store,
		hub:      hub,
		store:    snapshots,
		interval: interval,
		log:      logger,
	}
}

// Run publishes snapshots until ctx is cancelled. One snapshot goes out
// immediately so late subscribers never wait a full interval for state.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.emit()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.emit()
		}
	}
}

// Emit publishes one snapshot outside the ticker, used for the final
// state push during shutdown.
func (b *Broadcaster) Emit() {
	b.emit()
}

func (b *Broadcaster) emit() {
	snap := b.collect()
	b.hub.Publish(protocol.EventSnapshot, snap)

	if b.store == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		b.log.Error().
			Str("component", "broadcast").
			Err(err).
			Msg("encode snapshot")
		return
	}
	if err := b.store.SaveSnapshot(time.Now().UTC(), payload); err != nil {
		b.log.Warn().
			Str("component", "broadcast").
			Err(err).
			Msg("persist snapshot")
	}
}

func (b *Broadcaster) collect() Snapshot {
	return Snapshot{
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
		InterfaceVersion: protocol.InterfaceVersion,
		Sessions:         b.sessions.List(),
		Tasks:            b.tasks.List(),
		Cache:            b.cache.Stats(),
	}
}
