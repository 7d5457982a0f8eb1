package session

import (
	"sync"
	"time"

	"hark/internal/audio"
	"hark/internal/protocol"
)

// maxReadRetries bounds consecutive transient device-read failures before
// the session fails.
const maxReadRetries = 3

type recordingSession struct {
	id              string
	device          audio.Device
	filePath        string
	maxDuration     time.Duration
	autoStopSilence time.Duration
	silence         *silenceTracker

	mu            sync.Mutex
	status        Status
	startTime     time.Time
	frames        int64
	buf           []int16
	errMsg        string
	stopRequested bool
	saveOnStop    bool
	terminalAt    time.Time

	done chan struct{}
}

func (s *recordingSession) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *recordingSession) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:             s.id,
		Device:         s.device,
		Status:         s.status,
		StartTime:      s.startTime,
		FramesCaptured: s.frames,
		ErrorMessage:   s.errMsg,
	}
	if s.device.SampleRate > 0 {
		snap.ElapsedSeconds = float64(s.frames) / s.device.SampleRate
	}
	if s.maxDuration > 0 {
		snap.MaxDuration = s.maxDuration.Seconds()
	}
	if s.autoStopSilence > 0 {
		snap.AutoStopSilence = s.autoStopSilence.Seconds()
	}
	if s.status == StatusSaved && s.saveOnStop {
		snap.FilePath = s.filePath
	}
	return snap
}

// advance moves the session forward; backward transitions are ignored,
// keeping observed status sequences monotonic.
func (s *recordingSession) advance(next Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next.Rank() < s.status.Rank() || s.status.Terminal() {
		return false
	}
	s.status = next
	if next.Terminal() {
		s.terminalAt = time.Now()
	}
	return true
}

// run is the capture loop. It exclusively owns the device handle from
// open to close; all failures terminate this session only.
func (s *recordingSession) run(m *Manager) {
	defer close(s.done)

	rate := s.device.SampleRate
	if m.cfg.SampleRate > 0 {
		rate = float64(m.cfg.SampleRate)
	}
	capture, err := m.audio.OpenCapture(s.device.ID, audio.CaptureConfig{
		SampleRate: rate,
	})
	if err != nil {
		s.fail(m, "open device: "+err.Error())
		return
	}
	defer capture.Close()

	// The stream reports its actual shape; keep the snapshot honest.
	s.mu.Lock()
	s.device = capture.Device()
	s.startTime = time.Now().UTC()
	s.mu.Unlock()

	s.advance(StatusRecording)
	m.publish(protocol.EventSessionStarted, s.snapshot())
	m.log.Info().
		Str("component", "session").
		Str("session_id", s.id).
		Str("device", s.device.Name).
		Msg("recording started")

	retries := 0
	for {
		batch, err := capture.Read()
		if err != nil {
			if s.stopWanted() {
				break
			}
			retries++
			if retries > maxReadRetries {
				s.fail(m, "device read: "+err.Error())
				return
			}
			m.log.Warn().
				Str("component", "session").
				Str("session_id", s.id).
				Int("attempt", retries).
				Err(err).
				Msg("transient read failure")
			continue
		}
		retries = 0

		channels := s.device.Channels
		if channels <= 0 {
			channels = 1
		}
		frames := int64(len(batch) / channels)

		s.mu.Lock()
		s.buf = append(s.buf, batch...)
		s.frames += frames
		elapsed := float64(s.frames) / s.device.SampleRate
		stop := s.stopRequested
		s.mu.Unlock()

		if stop {
			break
		}
		if s.maxDuration > 0 && elapsed >= s.maxDuration.Seconds() {
			s.requestStop(true)
			break
		}
		if s.autoStopSilence > 0 {
			batchDur := time.Duration(float64(frames) / s.device.SampleRate * float64(time.Second))
			if s.silence.Observe(batch, batchDur) >= s.autoStopSilence {
				m.log.Info().
					Str("component", "session").
					Str("session_id", s.id).
					Msg("auto-stopping on silence")
				s.requestStop(true)
				break
			}
		}
	}

	s.finish(m)
}

func (s *recordingSession) finish(m *Manager) {
	s.advance(StatusStopping)

	s.mu.Lock()
	save := s.saveOnStop
	samples := s.buf
	s.buf = nil
	s.mu.Unlock()

	if save {
		channels := s.device.Channels
		if channels <= 0 {
			channels = 1
		}
		if err := audio.WriteWAV(s.filePath, samples, int(s.device.SampleRate), channels); err != nil {
			s.fail(m, "write recording: "+err.Error())
			return
		}
	}

	s.advance(StatusSaved)
	m.release(s)

	snap := s.snapshot()
	if save && m.history != nil {
		if err := m.history.RecordSaved(snap); err != nil {
			m.log.Warn().
				Str("component", "session").
				Str("session_id", s.id).
				Err(err).
				Msg("record saved session")
		}
	}
	m.publish(protocol.EventSessionSaved, snap)
	m.log.Info().
		Str("component", "session").
		Str("session_id", s.id).
		Int64("frames", snap.FramesCaptured).
		Str("file", snap.FilePath).
		Msg("recording finished")
}

func (s *recordingSession) fail(m *Manager, msg string) {
	s.mu.Lock()
	if s.errMsg == "" {
		s.errMsg = msg
	}
	s.buf = nil
	s.mu.Unlock()
	s.advance(StatusError)
	m.release(s)
	m.publish(protocol.EventSessionError, s.snapshot())
	m.log.Error().
		Str("component", "session").
		Str("session_id", s.id).
		Str("reason", msg).
		Msg("recording failed")
}

func (s *recordingSession) requestStop(save bool) {
	s.mu.Lock()
	if !s.stopRequested {
		s.stopRequested = true
		s.saveOnStop = save
	}
	s.mu.Unlock()
}

func (s *recordingSession) stopWanted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}
