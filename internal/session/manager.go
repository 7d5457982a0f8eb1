// Package session owns recording sessions: device binding, the capture
// goroutine per session, in-memory frame buffering, and persistence of
// finished recordings.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hark/internal/audio"
)

// ErrStopTimeout is returned when a stop request is accepted but the
// capture loop does not reach a terminal state within the wait window.
var ErrStopTimeout = errors.New("timed out waiting for session to stop")

const (
	defaultRetainTerminal = 10 * time.Minute
	defaultStopWait       = 5 * time.Second
	gcInterval            = 30 * time.Second
)

// Config tunes the manager. Zero values get sensible defaults.
type Config struct {
	OutputDir        string
	RetainTerminal   time.Duration
	StopWait         time.Duration
	SilenceThreshold float64
	// SampleRate overrides the device default when positive.
	SampleRate int
}

// Manager is the active-session table. One mutex guards the table and
// device bindings; per-session state has its own lock.
type Manager struct {
	audio   audio.Context
	hub     EventPublisher
	history History
	log     zerolog.Logger
	cfg     Config

	mu         sync.Mutex
	sessions   map[string]*recordingSession
	deviceBusy map[string]string
}

// NewManager wires the session table. hub and history may be nil.
func NewManager(audioCtx audio.Context, hub EventPublisher, history History, logger zerolog.Logger, cfg Config) *Manager {
	if cfg.RetainTerminal <= 0 {
		cfg.RetainTerminal = defaultRetainTerminal
	}
	if cfg.StopWait <= 0 {
		cfg.StopWait = defaultStopWait
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join("data", "recordings")
	}
	return &Manager{
		audio:      audioCtx,
		hub:        hub,
		history:    history,
		log:        logger,
		cfg:        cfg,
		sessions:   make(map[string]*recordingSession),
		deviceBusy: make(map[string]string),
	}
}

// Devices enumerates capture devices. An empty host yields an empty
// list, not an error.
func (m *Manager) Devices() ([]audio.Device, error) {
	devices, err := m.audio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	if devices == nil {
		devices = []audio.Device{}
	}
	return devices, nil
}

// Start accepts a recording request and returns the new session id
// immediately; capture begins on a dedicated goroutine and failures
// after acceptance surface as the session's error state.
func (m *Manager) Start(opts StartOptions) (string, error) {
	devices, err := m.audio.Devices()
	if err != nil {
		return "", fmt.Errorf("enumerate devices: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.DeviceID != "" {
		if sid, busy := m.deviceBusy[opts.DeviceID]; busy {
			return "", fmt.Errorf("device %s bound to session %s: %w", opts.DeviceID, sid, ErrDeviceBusy)
		}
	}

	candidates := devices
	if opts.DeviceID == "" {
		candidates = make([]audio.Device, 0, len(devices))
		for _, d := range devices {
			if _, busy := m.deviceBusy[d.ID]; !busy {
				candidates = append(candidates, d)
			}
		}
	}

	device, err := audio.PickDevice(candidates, opts.DeviceID)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	filename := strings.TrimSpace(opts.Filename)
	if filename == "" {
		filename = id + ".wav"
	}

	s := &recordingSession{
		id:              id,
		device:          device,
		filePath:        filepath.Join(m.cfg.OutputDir, filename),
		maxDuration:     opts.MaxDuration,
		autoStopSilence: opts.AutoStopSilence,
		silence:         newSilenceTracker(m.cfg.SilenceThreshold),
		status:          StatusStarting,
		startTime:       time.Now().UTC(),
		saveOnStop:      true,
		done:            make(chan struct{}),
	}
	m.sessions[id] = s
	m.deviceBusy[device.ID] = id

	go s.run(m)
	return id, nil
}

// Stop requests a stop and waits for the session to reach a terminal
// state. Stopping an already-stopped session returns its terminal
// snapshot without error.
func (m *Manager) Stop(id string, save bool) (Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}

	snap := s.snapshot()
	if snap.Status.Terminal() {
		return snap, nil
	}

	s.requestStop(save)

	select {
	case <-s.done:
		return s.snapshot(), nil
	case <-time.After(m.cfg.StopWait):
		return s.snapshot(), ErrStopTimeout
	}
}

// Get returns a snapshot without blocking on the capture goroutine.
func (m *Manager) Get(id string) (Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// List returns snapshots of every tracked session, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	sessions := make([]*recordingSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// Active returns snapshots of non-terminal sessions only.
func (m *Manager) Active() []Snapshot {
	all := m.List()
	out := make([]Snapshot, 0, len(all))
	for _, snap := range all {
		if !snap.Status.Terminal() {
			out = append(out, snap)
		}
	}
	return out
}

// StopAll stops every active session, saving buffered audio. Used on
// daemon shutdown.
func (m *Manager) StopAll() {
	for _, snap := range m.Active() {
		if _, err := m.Stop(snap.ID, true); err != nil && !errors.Is(err, ErrNotFound) {
			m.log.Warn().
				Str("component", "session").
				Str("session_id", snap.ID).
				Err(err).
				Msg("stop on shutdown")
		}
	}
}

// Run periodically drops terminal sessions past the retention window.
// It returns when ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepTerminal(time.Now())
		}
	}
}

func (m *Manager) sweepTerminal(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.mu.Lock()
		expired := s.status.Terminal() && now.Sub(s.terminalAt) > m.cfg.RetainTerminal
		s.mu.Unlock()
		if expired {
			delete(m.sessions, id)
		}
	}
}

func (m *Manager) lookup(id string) (*recordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// release frees the device binding once a session goes terminal.
func (m *Manager) release(s *recordingSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deviceBusy[s.device.ID] == s.id {
		delete(m.deviceBusy, s.device.ID)
	}
}

func (m *Manager) publish(event string, payload any) {
	if m.hub != nil {
		m.hub.Publish(event, payload)
	}
}
