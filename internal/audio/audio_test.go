package audio

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestIsLoopbackName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"Monitor of Built-in Audio", true},
		{"pulse loopback", true},
		{"Stereo Mix (Realtek)", true},
		{"What U Hear", true},
		{"Built-in Microphone", false},
		{"USB Audio Device", false},
	}
	for _, tt := range tests {
		if got := IsLoopbackName(tt.name); got != tt.want {
			t.Errorf("IsLoopbackName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPickDevice(t *testing.T) {
	t.Parallel()

	mic := Device{ID: "d1", Name: "Mic", Available: true}
	monitor := Device{ID: "d2", Name: "Monitor of Speakers", IsLoopback: true, Available: true}
	offline := Device{ID: "d3", Name: "Unplugged", Available: false}

	tests := []struct {
		name     string
		devices  []Device
		deviceID string
		wantID   string
		wantErr  bool
	}{
		{"explicit id", []Device{mic, monitor}, "d1", "d1", false},
		{"explicit unknown", []Device{mic}, "nope", "", true},
		{"explicit unavailable", []Device{offline}, "d3", "", true},
		{"auto prefers loopback", []Device{mic, monitor}, "", "d2", false},
		{"auto falls back to input", []Device{offline, mic}, "", "d1", false},
		{"no devices", nil, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := PickDevice(tt.devices, tt.deviceID)
			if tt.wantErr {
				if !errors.Is(err, ErrNoDevice) {
					t.Fatalf("expected ErrNoDevice, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PickDevice failed: %v", err)
			}
			if got.ID != tt.wantID {
				t.Fatalf("picked %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestDisabledContextHasNoDevices(t *testing.T) {
	t.Parallel()

	ctx := DisabledContext{}
	devices, err := ctx.Devices()
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("disabled context reported devices: %+v", devices)
	}
	if _, err := ctx.OpenCapture("", CaptureConfig{}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	if _, err := ctx.OpenCapture("fake:0", CaptureConfig{}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice for explicit id, got %v", err)
	}
}

func TestWriteWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out.wav")
	samples := []int16{100, -100, 200, -200}

	if err := WriteWAV(path, samples, 16000, 1); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("unexpected file size %d", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers: %q %q", data[0:4], data[8:12])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Fatalf("sample rate in header = %d, want 16000", rate)
	}
	if dataSize := binary.LittleEndian.Uint32(data[40:44]); dataSize != uint32(len(samples)*2) {
		t.Fatalf("data size in header = %d, want %d", dataSize, len(samples)*2)
	}
	if first := int16(binary.LittleEndian.Uint16(data[44:46])); first != 100 {
		t.Fatalf("first sample = %d, want 100", first)
	}
}

func TestWriteWAVRejectsBadRate(t *testing.T) {
	t.Parallel()

	if err := WriteWAV(filepath.Join(t.TempDir(), "x.wav"), nil, 0, 1); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestFakeCaptureReadAndClose(t *testing.T) {
	t.Parallel()

	ctx := NewFakeContext()
	capture, err := ctx.OpenCapture("", CaptureConfig{})
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}

	batch, err := capture.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(batch) != 1600 {
		t.Fatalf("batch length = %d, want 1600", len(batch))
	}

	if err := capture.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := capture.Read(); !errors.Is(err, ErrCaptureClosed) {
		t.Fatalf("expected ErrCaptureClosed after Close, got %v", err)
	}
}

func TestFakeCaptureInjectedReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ctx := NewFakeContext()
	ctx.ReadErrs = map[int]error{1: boom}

	capture, err := ctx.OpenCapture("fake:0", CaptureConfig{})
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	defer capture.Close()

	if _, err := capture.Read(); err != nil {
		t.Fatalf("first read should succeed, got %v", err)
	}
	if _, err := capture.Read(); !errors.Is(err, boom) {
		t.Fatalf("expected injected error on second read, got %v", err)
	}
	if _, err := capture.Read(); err != nil {
		t.Fatalf("third read should recover, got %v", err)
	}
}

func TestFakeContextUnknownDevice(t *testing.T) {
	t.Parallel()

	ctx := NewFakeContext()
	if _, err := ctx.OpenCapture("missing", CaptureConfig{}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}
