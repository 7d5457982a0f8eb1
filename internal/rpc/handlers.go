package rpc

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"hark/internal/cache"
	"hark/internal/protocol"
	"hark/internal/session"
	"hark/internal/storage"
	"hark/internal/summary"
	"hark/internal/task"
	"hark/internal/transcribe"
)

// RecordingLister exposes the persisted recording history; the sqlite
// store implements it.
type RecordingLister interface {
	ListRecordings(limit int) ([]storage.Recording, error)
}

// Core binds the daemon's subsystems to wire methods.
type Core struct {
	Sessions    *session.Manager
	Tasks       *task.Manager
	Cache       *cache.Cache
	Transcriber *transcribe.Service
	Summarizer  *summary.Summarizer
	History     RecordingLister
	StartedAt   time.Time
}

// RegisterAll installs the full method surface on the dispatcher.
func (c *Core) RegisterAll(d *Dispatcher) {
	d.Register("devices.list", c.devicesList)
	d.Register("record.start", c.recordStart)
	d.Register("record.stop", c.recordStop)
	d.Register("record.status", c.recordStatus)
	d.Register("sessions.list", c.sessionsList)
	d.Register("task.submit", c.taskSubmit)
	d.Register("task.status", c.taskStatus)
	d.Register("task.cancel", c.taskCancel)
	d.Register("task.list", c.taskList)
	d.Register("cache.status", c.cacheStatus)
	d.Register("daemon.status", c.daemonStatus)
}

func (c *Core) devicesList(_ context.Context, _ json.RawMessage) (any, *protocol.ErrorInfo) {
	devices, err := c.Sessions.Devices()
	if err != nil {
		return nil, errorInfoFrom(err)
	}
	return map[string]any{"devices": devices}, nil
}

type recordStartParams struct {
	DeviceID        string  `json:"device_id"`
	Filename        string  `json:"filename"`
	MaxDuration     float64 `json:"max_duration"`
	AutoStopSilence float64 `json:"auto_stop_silence"`
}

func (c *Core) recordStart(_ context.Context, params json.RawMessage) (any, *protocol.ErrorInfo) {
	var p recordStartParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.MaxDuration < 0 || p.AutoStopSilence < 0 {
		return nil, protocol.NewError(protocol.CodeValidation, "durations must be non-negative")
	}

	id, err := c.Sessions.Start(session.StartOptions{
		DeviceID:        p.DeviceID,
		Filename:        p.Filename,
		MaxDuration:     secondsToDuration(p.MaxDuration),
		AutoStopSilence: secondsToDuration(p.AutoStopSilence),
	})
	if err != nil {
		return nil, errorInfoFrom(err)
	}
	return map[string]string{"session_id": id}, nil
}

type recordStopParams struct {
	SessionID string `json:"session_id"`
	SaveFile  *bool  `json:"save_file"`
}

func (c *Core) recordStop(_ context.Context, params json.RawMessage) (any, *protocol.ErrorInfo) {
	var p recordStopParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, protocol.NewError(protocol.CodeValidation, "session_id is required")
	}

	save := true
	if p.SaveFile != nil {
		save = *p.SaveFile
	}
	snap, err := c.Sessions.Stop(p.SessionID, save)
	if err != nil {
		return nil, errorInfoFrom(err)
	}
	return snap, nil
}

type sessionIDParams struct {
	SessionID string `json:"session_id"`
}

func (c *Core) recordStatus(_ context.Context, params json.RawMessage) (any, *protocol.ErrorInfo) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, protocol.NewError(protocol.CodeValidation, "session_id is required")
	}
	snap, err := c.Sessions.Get(p.SessionID)
	if err != nil {
		return nil, errorInfoFrom(err)
	}
	return snap, nil
}

type sessionsListParams struct {
	SessionID       string `json:"session_id"`
	IncludeFinished bool   `json:"include_finished"`
}

func (c *Core) sessionsList(_ context.Context, params json.RawMessage) (any, *protocol.ErrorInfo) {
	var p sessionsListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	sessions := c.Sessions.List()
	if p.SessionID != "" {
		snap, err := c.Sessions.Get(p.SessionID)
		if err != nil {
			return nil, errorInfoFrom(err)
		}
		sessions = []session.Snapshot{snap}
	}

	result := map[string]any{"sessions": sessions}
	if p.IncludeFinished && c.History != nil {
		recordings, err := c.History.ListRecordings(100)
		if err != nil {
			return nil, errorInfoFrom(err)
		}
		result["recordings"] = recordings
	}
	return result, nil
}

type taskSubmitParams struct {
	Kind string `json:"kind"`
}

func (c *Core) taskSubmit(_ context.Context, params json.RawMessage) (any, *protocol.ErrorInfo) {
	var p taskSubmitParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	var work task.Work
	var name string
	switch p.Kind {
	case "transcribe":
		var req transcribe.Request
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		w, err := c.Transcriber.Work(req)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeValidation, "%s", err.Error())
		}
		work = w
		name = "transcribe " + req.File
	case "summarize":
		if c.Summarizer == nil {
			return nil, protocol.NewError(protocol.CodeValidation, "summarization is not configured")
		}
		var req summary.Request
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		w, err := c.Summarizer.Work(req)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeValidation, "%s", err.Error())
		}
		work = w
		name = "summarize"
	default:
		return nil, protocol.NewError(protocol.CodeValidation, "unknown task kind %q", p.Kind)
	}

	id := c.Tasks.Submit(name, work)
	return map[string]string{"task_id": id}, nil
}

type taskIDParams struct {
	TaskID string `json:"task_id"`
}

func (c *Core) taskStatus(_ context.Context, params json.RawMessage) (any, *protocol.ErrorInfo) {
	var p taskIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.TaskID == "" {
		return nil, protocol.NewError(protocol.CodeValidation, "task_id is required")
	}
	snap, err := c.Tasks.Get(p.TaskID)
	if err != nil {
		return nil, errorInfoFrom(err)
	}
	return snap, nil
}

func (c *Core) taskCancel(_ context.Context, params json.RawMessage) (any, *protocol.ErrorInfo) {
	var p taskIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.TaskID == "" {
		return nil, protocol.NewError(protocol.CodeValidation, "task_id is required")
	}
	return map[string]bool{"cancelled": c.Tasks.Cancel(p.TaskID)}, nil
}

func (c *Core) taskList(_ context.Context, _ json.RawMessage) (any, *protocol.ErrorInfo) {
	return map[string]any{"tasks": c.Tasks.List()}, nil
}

func (c *Core) cacheStatus(_ context.Context, _ json.RawMessage) (any, *protocol.ErrorInfo) {
	return c.Cache.Stats(), nil
}

func (c *Core) daemonStatus(_ context.Context, _ json.RawMessage) (any, *protocol.ErrorInfo) {
	return c.StatusDoc(), nil
}

// StatusDoc builds the daemon status document, shared by the wire
// method and the HTTP status route.
func (c *Core) StatusDoc() any {
	return map[string]any{
		"pid":               os.Getpid(),
		"interface_version": protocol.InterfaceVersion,
		"uptime_seconds":    time.Since(c.StartedAt).Seconds(),
		"sessions_active":   len(c.Sessions.Active()),
		"tasks":             len(c.Tasks.List()),
		"cache":             c.Cache.Stats(),
	}
}

func decodeParams(params json.RawMessage, dst any) *protocol.ErrorInfo {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return protocol.NewError(protocol.CodeValidation, "invalid params: %v", err)
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
