package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestGetGlobalEventLoggerReturnsSingletonNoopWhenUnset(t *testing.T) {
	SetGlobalEventLogger(nil)

	a := GetGlobalEventLogger()
	b := GetGlobalEventLogger()

	if a == nil || b == nil {
		t.Fatal("expected non-nil noop logger")
	}
	if a != b {
		t.Fatal("expected singleton noop logger instance")
	}
}

func TestEventLoggerEmitsJSONWithRunID(t *testing.T) {
	var buf bytes.Buffer
	el := NewEventLoggerWithWriter("run-test", &buf)

	el.LogRunStateChange("Warmup", "Running")
	el.LogAgentLost("agent-1", 4200)
	el.LogShardError("/tmp/shard-0.log", errors.New("disk full"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 records, got %d", len(lines))
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["run_id"] != "run-test" {
		t.Errorf("run_id = %v, want run-test", rec["run_id"])
	}
	if rec["msg"] != "run_state_change" {
		t.Errorf("msg = %v, want run_state_change", rec["msg"])
	}
	if rec["from"] != "Warmup" || rec["to"] != "Running" {
		t.Errorf("from/to = %v/%v", rec["from"], rec["to"])
	}

	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["level"] != "WARN" {
		t.Errorf("agent_lost level = %v, want WARN", rec["level"])
	}
	if rec["agent_id"] != "agent-1" {
		t.Errorf("agent_id = %v", rec["agent_id"])
	}

	if err := json.Unmarshal([]byte(lines[2]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["error"] != "disk full" {
		t.Errorf("error = %v, want disk full", rec["error"])
	}
}

func TestStageTransitionAttributes(t *testing.T) {
	var buf bytes.Buffer
	el := NewEventLoggerWithWriter("run-x", &buf)

	el.LogStageTransition(2, 450.0, 12000)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["stage_index"] != float64(2) {
		t.Errorf("stage_index = %v, want 2", rec["stage_index"])
	}
	if rec["target_rps"] != float64(450) {
		t.Errorf("target_rps = %v, want 450", rec["target_rps"])
	}
}
