package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestOKEnvelope(t *testing.T) {
	t.Parallel()

	resp := OK("r1", map[string]int{"n": 3})
	if resp.ID != "r1" || resp.Status != StatusOK || resp.Error != nil {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.InterfaceVersion != InterfaceVersion {
		t.Fatal("missing interface_version")
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := doc["interface_version"]; !ok {
		t.Fatalf("interface_version absent on the wire: %s", raw)
	}
	if _, ok := doc["error"]; ok {
		t.Fatalf("error key present on success: %s", raw)
	}
}

func TestOKDegradesOnUnencodableResult(t *testing.T) {
	t.Parallel()

	resp := OK("r1", make(chan int))
	if resp.Status != StatusError || resp.Error == nil || resp.Error.Code != CodeInternal {
		t.Fatalf("expected internal error envelope, got %+v", resp)
	}
	if resp.ID != "r1" {
		t.Fatal("degraded envelope lost the request id")
	}
}

func TestFailEnvelope(t *testing.T) {
	t.Parallel()

	resp := Fail("r2", NewError(CodeNotFound, "no such %s", "thing"))
	if resp.Status != StatusError || resp.Error.Code != CodeNotFound {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.Error.Message != "no such thing" {
		t.Fatalf("message = %q", resp.Error.Message)
	}

	var asErr error = resp.Error
	if !errors.As(asErr, new(*ErrorInfo)) {
		t.Fatal("ErrorInfo should satisfy error")
	}
}

func TestNewEventFrame(t *testing.T) {
	t.Parallel()

	ev, err := NewEvent(EventSessionStarted, map[string]string{"id": "s1"})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if ev.Event != EventSessionStarted || ev.InterfaceVersion != InterfaceVersion || ev.Timestamp == "" {
		t.Fatalf("unexpected frame: %+v", ev)
	}

	raw, _ := json.Marshal(ev)
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := doc["event"]; !ok {
		t.Fatalf("event key absent: %s", raw)
	}
	if _, ok := doc["id"]; ok {
		t.Fatalf("event frame must not carry a request id: %s", raw)
	}

	if _, err := NewEvent("bad", make(chan int)); err == nil {
		t.Fatal("expected error for unencodable payload")
	}
}
