package session

import (
	"errors"
	"time"

	"hark/internal/audio"
)

// Status is the recording session lifecycle. Transitions only move
// forward in rank; Saved and Error are terminal.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusRecording Status = "recording"
	StatusStopping  Status = "stopping"
	StatusSaved     Status = "saved"
	StatusError     Status = "error"
)

var statusRank = map[Status]int{
	StatusIdle:      0,
	StatusStarting:  1,
	StatusRecording: 2,
	StatusStopping:  3,
	StatusSaved:     4,
	StatusError:     4,
}

// Rank orders statuses for monotonicity checks.
func (s Status) Rank() int { return statusRank[s] }

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool { return s == StatusSaved || s == StatusError }

// Snapshot is a point-in-time copy of a session, safe to hand to
// transports and the broadcaster.
type Snapshot struct {
	ID              string       `json:"id"`
	Device          audio.Device `json:"device"`
	Status          Status       `json:"status"`
	StartTime       time.Time    `json:"start_time"`
	ElapsedSeconds  float64      `json:"elapsed_seconds"`
	FramesCaptured  int64        `json:"frames_captured"`
	FilePath        string       `json:"file_path,omitempty"`
	MaxDuration     float64      `json:"max_duration,omitempty"`
	AutoStopSilence float64      `json:"auto_stop_silence,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
}

// StartOptions shape a record.start request.
type StartOptions struct {
	DeviceID        string
	Filename        string
	MaxDuration     time.Duration
	AutoStopSilence time.Duration
}

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrDeviceBusy is returned when a device is already bound to an
	// active session.
	ErrDeviceBusy = errors.New("device already recording")
)

// EventPublisher receives session state-change events. The server hub
// implements it; a nil publisher is allowed.
type EventPublisher interface {
	Publish(event string, payload any)
}

// History receives saved-recording records for persistence. The sqlite
// store implements it.
type History interface {
	RecordSaved(snap Snapshot) error
}
