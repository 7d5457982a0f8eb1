// Package rpc decodes request envelopes, routes them to registered
// method handlers, and encodes result or error envelopes. It is
// transport-agnostic and stateless beyond the method registry.
package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"hark/internal/audio"
	"hark/internal/protocol"
	"hark/internal/session"
	"hark/internal/task"
)

// HandlerFunc executes one method. A nil *ErrorInfo means success.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorInfo)

// Dispatcher is the method registry. Register all handlers before
// serving; registration is not synchronized with dispatch.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	log      zerolog.Logger
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		log:      logger,
	}
}

// Register binds a method name to a handler, replacing any previous one.
func (d *Dispatcher) Register(method string, h HandlerFunc) {
	d.handlers[method] = h
}

// Methods lists registered method names.
func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	return out
}

// Dispatch handles one raw request line and always returns exactly one
// response. Malformed input yields a validation error response; handler
// panics are contained and yield an internal error response.
func (d *Dispatcher) Dispatch(ctx context.Context, line []byte) protocol.Response {
	var req protocol.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return protocol.Fail("", protocol.NewError(protocol.CodeValidation, "malformed request: %v", err))
	}
	if req.Method == "" {
		return protocol.Fail(req.ID, protocol.NewError(protocol.CodeValidation, "missing method"))
	}

	handler, ok := d.handlers[req.Method]
	if !ok {
		return protocol.Fail(req.ID, protocol.NewError(protocol.CodeNotFound, "unknown method %q", req.Method))
	}

	var result any
	var errInfo *protocol.ErrorInfo
	func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.Error().
					Str("component", "rpc").
					Str("method", req.Method).
					Interface("panic", r).
					Msg("handler panicked")
				errInfo = protocol.NewError(protocol.CodeInternal, "internal error in %s", req.Method)
			}
		}()
		result, errInfo = handler(ctx, req.Params)
	}()

	if errInfo != nil {
		return protocol.Fail(req.ID, errInfo)
	}
	return protocol.OK(req.ID, result)
}

// errorInfoFrom maps sentinel errors from the core subsystems onto the
// closed wire code set.
func errorInfoFrom(err error) *protocol.ErrorInfo {
	switch {
	case errors.Is(err, audio.ErrNoDevice), errors.Is(err, session.ErrDeviceBusy):
		return protocol.NewError(protocol.CodeDeviceUnavailable, "%s", err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, task.ErrNotFound):
		return protocol.NewError(protocol.CodeNotFound, "%s", err.Error())
	case errors.Is(err, session.ErrStopTimeout):
		return protocol.NewError(protocol.CodeTimeout, "%s", err.Error())
	default:
		return protocol.NewError(protocol.CodeInternal, "%s", err.Error())
	}
}
