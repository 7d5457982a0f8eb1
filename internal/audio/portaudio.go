package audio

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const defaultFramesPerBuffer = 1024

// PortAudioContext backs the Context interface with real hardware.
// PortAudio device indices are only stable between enumerations, so ids
// are "pa:<index>" snapshots.
type PortAudioContext struct {
	mu     sync.Mutex
	closed bool
}

// NewPortAudioContext initializes the PortAudio runtime. Callers must
// Close to release it.
func NewPortAudioContext() (*PortAudioContext, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &PortAudioContext{}, nil
}

func (c *PortAudioContext) Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, Device{
			ID:         "pa:" + strconv.Itoa(i),
			Name:       info.Name,
			IsLoopback: IsLoopbackName(info.Name),
			Channels:   info.MaxInputChannels,
			SampleRate: info.DefaultSampleRate,
			Available:  true,
		})
	}
	return devices, nil
}

func (c *PortAudioContext) OpenCapture(deviceID string, cfg CaptureConfig) (CaptureDevice, error) {
	info, snapshot, err := c.resolve(deviceID)
	if err != nil {
		return nil, err
	}

	channels := cfg.Channels
	if channels <= 0 || channels > info.MaxInputChannels {
		channels = 1
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = info.DefaultSampleRate
	}
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = defaultFramesPerBuffer
	}

	buf := make([]int16, frames*channels)
	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = channels
	params.SampleRate = rate
	params.FramesPerBuffer = frames

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("open capture stream for %s: %w", snapshot.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start capture stream for %s: %w", snapshot.Name, err)
	}

	snapshot.Channels = channels
	snapshot.SampleRate = rate
	return &portAudioCapture{stream: stream, buf: buf, device: snapshot}, nil
}

func (c *PortAudioContext) resolve(deviceID string) (*portaudio.DeviceInfo, Device, error) {
	if deviceID == "" {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, Device{}, fmt.Errorf("default input device: %w", ErrNoDevice)
		}
		return info, Device{
			ID:         "pa:default",
			Name:       info.Name,
			IsLoopback: IsLoopbackName(info.Name),
			Channels:   info.MaxInputChannels,
			SampleRate: info.DefaultSampleRate,
			Available:  true,
		}, nil
	}

	idx, err := strconv.Atoi(strings.TrimPrefix(deviceID, "pa:"))
	if err != nil {
		return nil, Device{}, fmt.Errorf("malformed device id %q: %w", deviceID, ErrNoDevice)
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, Device{}, fmt.Errorf("enumerate devices: %w", err)
	}
	if idx < 0 || idx >= len(infos) || infos[idx].MaxInputChannels <= 0 {
		return nil, Device{}, fmt.Errorf("device %s: %w", deviceID, ErrNoDevice)
	}
	info := infos[idx]
	return info, Device{
		ID:         deviceID,
		Name:       info.Name,
		IsLoopback: IsLoopbackName(info.Name),
		Channels:   info.MaxInputChannels,
		SampleRate: info.DefaultSampleRate,
		Available:  true,
	}, nil
}

func (c *PortAudioContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return portaudio.Terminate()
}

type portAudioCapture struct {
	stream *portaudio.Stream
	buf    []int16
	device Device
}

func (p *portAudioCapture) Device() Device { return p.device }

func (p *portAudioCapture) Read() ([]int16, error) {
	if err := p.stream.Read(); err != nil {
		return nil, err
	}
	out := make([]int16, len(p.buf))
	copy(out, p.buf)
	return out, nil
}

func (p *portAudioCapture) Close() error {
	_ = p.stream.Stop()
	return p.stream.Close()
}
