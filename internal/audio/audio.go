// Package audio abstracts capture devices behind a Context interface so the
// session manager can run against real PortAudio hardware or an in-process
// fake. Device handles are exclusively owned by whoever opened them.
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoDevice is returned when device selection yields nothing usable.
var ErrNoDevice = errors.New("no capture device available")

// Device is an immutable snapshot of a capture device, refreshed on
// each enumeration.
type Device struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	IsLoopback bool    `json:"is_loopback"`
	Channels   int     `json:"channels"`
	SampleRate float64 `json:"sample_rate"`
	Available  bool    `json:"available"`
}

// CaptureConfig requests a stream shape from the backend. Zero values let
// the backend use the device's native rate and mono capture.
type CaptureConfig struct {
	SampleRate      float64
	Channels        int
	FramesPerBuffer int
}

// Context enumerates devices and opens capture streams.
type Context interface {
	Devices() ([]Device, error)
	OpenCapture(deviceID string, cfg CaptureConfig) (CaptureDevice, error)
	Close() error
}

// CaptureDevice is a running capture stream. Read blocks until one buffer
// of frames is available and returns a copy the caller owns.
type CaptureDevice interface {
	Device() Device
	Read() ([]int16, error)
	Close() error
}

// DisabledContext is a Context with no devices. The daemon falls back
// to it when the audio host fails to initialize, so the API and task
// subsystems keep serving while capture reports device-unavailable.
type DisabledContext struct{}

func (DisabledContext) Devices() ([]Device, error) { return nil, nil }

func (DisabledContext) OpenCapture(string, CaptureConfig) (CaptureDevice, error) {
	return nil, fmt.Errorf("audio host disabled: %w", ErrNoDevice)
}

func (DisabledContext) Close() error { return nil }

var loopbackKeywords = []string{"monitor", "loopback", "stereo mix", "what u hear"}

// IsLoopbackName reports whether a device name looks like a loopback
// (system output) source, e.g. PulseAudio "Monitor of ..." devices.
func IsLoopbackName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range loopbackKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// PickDevice resolves an explicit device id, or auto-selects: the first
// available loopback device wins, then the first available input device.
func PickDevice(devices []Device, deviceID string) (Device, error) {
	if deviceID != "" {
		for _, d := range devices {
			if d.ID == deviceID {
				if !d.Available {
					return Device{}, fmt.Errorf("device %s: %w", deviceID, ErrNoDevice)
				}
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("device %s not found: %w", deviceID, ErrNoDevice)
	}

	for _, d := range devices {
		if d.Available && d.IsLoopback {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.Available {
			return d, nil
		}
	}
	return Device{}, ErrNoDevice
}
