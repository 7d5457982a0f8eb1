// Package task tracks long-running background jobs: progress reporting,
// cooperative cancellation, terminal results, and garbage collection of
// old terminal tasks. Jobs run independently of the transport that
// submitted them.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hark/internal/protocol"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ErrNotFound is returned for unknown task ids.
var ErrNotFound = errors.New("task not found")

// Task is a point-in-time snapshot of a job.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Progress    float64    `json:"progress"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Work is a unit of background work. It must honor ctx cancellation and
// may call report with values in [0,1]; out-of-range values are clamped.
type Work func(ctx context.Context, report func(float64)) (any, error)

// EventPublisher receives task lifecycle events; nil is allowed.
type EventPublisher interface {
	Publish(event string, payload any)
}

type record struct {
	task   Task
	cancel context.CancelFunc
}

const defaultGCMaxAge = 10 * time.Minute

// Manager is the task table. One mutex guards all task records.
type Manager struct {
	hub EventPublisher
	log zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*record
}

// NewManager builds an empty task table.
func NewManager(hub EventPublisher, logger zerolog.Logger) *Manager {
	return &Manager{
		hub:   hub,
		log:   logger,
		tasks: make(map[string]*record),
	}
}

// Submit registers the job and runs it on its own goroutine. Panics and
// errors inside the work never propagate to the caller.
func (m *Manager) Submit(name string, work Work) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.tasks[id] = &record{
		task: Task{
			ID:        id,
			Name:      name,
			Status:    StatusPending,
			CreatedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	m.mu.Unlock()

	go m.execute(ctx, id, work)
	return id
}

func (m *Manager) execute(ctx context.Context, id string, work Work) {
	now := time.Now().UTC()
	m.mutate(id, func(t *Task) {
		t.Status = StatusRunning
		t.StartedAt = &now
	})

	var result any
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		result, err = work(ctx, func(p float64) { m.reportProgress(id, p) })
		return err
	}()

	done := time.Now().UTC()
	switch {
	case ctx.Err() != nil:
		// Cancel already marked the record; the orphaned unit's
		// result is discarded.
		m.mutate(id, func(t *Task) {
			if t.CompletedAt == nil {
				t.CompletedAt = &done
			}
		})
	case err != nil:
		m.mutate(id, func(t *Task) {
			t.Status = StatusFailed
			t.Error = err.Error()
			t.CompletedAt = &done
		})
		m.publishSnapshot(protocol.EventTaskFailed, id)
		m.log.Error().
			Str("component", "task").
			Str("task_id", id).
			Err(err).
			Msg("task failed")
	default:
		m.mutate(id, func(t *Task) {
			t.Status = StatusCompleted
			t.Progress = 1
			t.Result = result
			t.CompletedAt = &done
		})
		m.publishSnapshot(protocol.EventTaskDone, id)
	}
}

func (m *Manager) reportProgress(id string, p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	changed := false
	m.mutate(id, func(t *Task) {
		if t.Status.Terminal() {
			return
		}
		t.Progress = p
		changed = true
	})
	if changed {
		m.publishSnapshot(protocol.EventTaskProgress, id)
	}
}

// Get returns a snapshot of the task.
func (m *Manager) Get(id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return rec.task, nil
}

// Cancel delivers the cancellation signal and marks the task cancelled.
// Progress reported by the orphaned unit afterwards is discarded.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	rec, ok := m.tasks[id]
	if !ok || rec.task.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	rec.cancel()
	rec.task.Status = StatusCancelled
	now := time.Now().UTC()
	rec.task.CompletedAt = &now
	m.mu.Unlock()

	m.publishSnapshot(protocol.EventTaskCancelled, id)
	m.log.Info().
		Str("component", "task").
		Str("task_id", id).
		Msg("task cancelled")
	return true
}

// List returns all tracked tasks, newest first.
func (m *Manager) List() []Task {
	m.mu.Lock()
	out := make([]Task, 0, len(m.tasks))
	for _, rec := range m.tasks {
		out = append(out, rec.task)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// GC drops terminal tasks whose completion is older than maxAge and
// returns how many were removed.
func (m *Manager) GC(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = defaultGCMaxAge
	}
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, rec := range m.tasks {
		if rec.task.Status.Terminal() &&
			rec.task.CompletedAt != nil &&
			rec.task.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

// Run drives periodic GC until ctx is done.
func (m *Manager) Run(ctx context.Context, maxAge time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.GC(maxAge); n > 0 {
				m.log.Debug().
					Str("component", "task").
					Int("removed", n).
					Msg("collected terminal tasks")
			}
		}
	}
}

// CancelAll cancels every non-terminal task; used on shutdown.
func (m *Manager) CancelAll() {
	for _, t := range m.List() {
		if !t.Status.Terminal() {
			m.Cancel(t.ID)
		}
	}
}

func (m *Manager) mutate(id string, fn func(*Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[id]
	if !ok {
		return
	}
	fn(&rec.task)
}

func (m *Manager) publishSnapshot(event, id string) {
	if m.hub == nil {
		return
	}
	snap, err := m.Get(id)
	if err != nil {
		return
	}
	m.hub.Publish(event, snap)
}
