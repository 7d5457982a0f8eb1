// Package protocol defines the line-oriented JSON wire format shared by
// every hark transport: one request or response object per line, paired by
// an opaque id, plus unsolicited event frames distinguished by an "event"
// field instead of an "id".
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// InterfaceVersion is carried on every response and event frame.
const InterfaceVersion = "1"

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error codes form a closed set; clients switch on these, not on messages.
const (
	CodeValidation        = "E_VALIDATION"
	CodeDeviceUnavailable = "E_DEVICE_UNAVAILABLE"
	CodeTimeout           = "E_TIMEOUT"
	CodeInternal          = "E_INTERNAL"
	CodeNotFound          = "E_NOT_FOUND"
)

type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	ID               string          `json:"id"`
	InterfaceVersion string          `json:"interface_version"`
	Status           string          `json:"status"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            *ErrorInfo      `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an ErrorInfo with a formatted message.
func NewError(code, format string, args ...any) *ErrorInfo {
	return &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)}
}

// OK builds a success response, marshaling result into the envelope.
// A marshal failure degrades to an internal error response.
func OK(id string, result any) Response {
	payload, err := json.Marshal(result)
	if err != nil {
		return Fail(id, NewError(CodeInternal, "encode result: %v", err))
	}
	return Response{
		ID:               id,
		InterfaceVersion: InterfaceVersion,
		Status:           StatusOK,
		Result:           payload,
	}
}

// Fail builds an error response.
func Fail(id string, errInfo *ErrorInfo) Response {
	return Response{
		ID:               id,
		InterfaceVersion: InterfaceVersion,
		Status:           StatusError,
		Error:            errInfo,
	}
}

// Event is an unsolicited frame pushed by the daemon, interleaved with
// responses on subscribed connections.
type Event struct {
	Event            string          `json:"event"`
	InterfaceVersion string          `json:"interface_version"`
	Timestamp        string          `json:"ts"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// Event names emitted by the daemon.
const (
	EventSessionStarted = "session_started"
	EventSessionSaved   = "session_saved"
	EventSessionError   = "session_error"
	EventTaskProgress   = "task_progress"
	EventTaskDone       = "task_done"
	EventTaskFailed     = "task_failed"
	EventTaskCancelled  = "task_cancelled"
	EventSnapshot       = "snapshot"
)

// NewEvent builds an event frame with the payload marshaled in place.
func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode event payload: %w", err)
	}
	return Event{
		Event:            name,
		InterfaceVersion: InterfaceVersion,
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
		Payload:          data,
	}, nil
}
