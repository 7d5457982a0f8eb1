package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCaptureClosed is returned by a fake Read after Close.
var ErrCaptureClosed = errors.New("capture closed")

// FakeContext is an in-process Context for tests. Reads are paced far
// faster than real time; sessions measure elapsed audio by frame count,
// so a five second recording finishes in milliseconds.
type FakeContext struct {
	mu      sync.Mutex
	devices []Device

	OpenErr       error
	Interval      time.Duration
	FramesPerRead int
	// Amplitude supplies the sample value for a given read batch. Nil
	// means a constant non-silent tone.
	Amplitude func(batch int) int16
	// ReadErrs injects an error on specific read batches.
	ReadErrs map[int]error
}

// NewFakeContext returns a context exposing the given devices, or a
// single default input when none are given.
func NewFakeContext(devices ...Device) *FakeContext {
	if len(devices) == 0 {
		devices = []Device{{
			ID:         "fake:0",
			Name:       "Fake Input",
			Channels:   1,
			SampleRate: 16000,
			Available:  true,
		}}
	}
	return &FakeContext{
		devices:       devices,
		Interval:      time.Millisecond,
		FramesPerRead: 1600,
	}
}

func (f *FakeContext) Devices() ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *FakeContext) OpenCapture(deviceID string, cfg CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.OpenErr != nil {
		return nil, f.OpenErr
	}

	var device *Device
	for i := range f.devices {
		if deviceID == "" || f.devices[i].ID == deviceID {
			device = &f.devices[i]
			break
		}
	}
	if device == nil || !device.Available {
		return nil, fmt.Errorf("device %s: %w", deviceID, ErrNoDevice)
	}

	snapshot := *device
	if cfg.SampleRate > 0 {
		snapshot.SampleRate = cfg.SampleRate
	}
	snapshot.Channels = 1

	return &FakeCapture{
		device:   snapshot,
		interval: f.Interval,
		frames:   f.FramesPerRead,
		amp:      f.Amplitude,
		readErrs: f.ReadErrs,
		closed:   make(chan struct{}),
	}, nil
}

func (f *FakeContext) Close() error { return nil }

// FakeCapture produces synthetic PCM batches on each Read.
type FakeCapture struct {
	device   Device
	interval time.Duration
	frames   int
	amp      func(batch int) int16
	readErrs map[int]error

	mu     sync.Mutex
	batch  int
	closed chan struct{}
}

func (f *FakeCapture) Device() Device { return f.device }

func (f *FakeCapture) Read() ([]int16, error) {
	select {
	case <-f.closed:
		return nil, ErrCaptureClosed
	case <-time.After(f.interval):
	}

	f.mu.Lock()
	batch := f.batch
	f.batch++
	f.mu.Unlock()

	if err, ok := f.readErrs[batch]; ok && err != nil {
		return nil, err
	}

	amplitude := int16(1000)
	if f.amp != nil {
		amplitude = f.amp(batch)
	}

	buf := make([]int16, f.frames)
	for i := range buf {
		// Alternate sign so the signal has energy but no DC offset.
		if i%2 == 0 {
			buf[i] = amplitude
		} else {
			buf[i] = -amplitude
		}
	}
	return buf, nil
}

func (f *FakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}
