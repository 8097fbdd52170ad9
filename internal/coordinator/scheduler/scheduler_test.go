package scheduler

import (
	"testing"
	"time"
)

func TestPartitionIntLargestRemainder(t *testing.T) {
	agents := []WeightedAgent{{ID: "a", Weight: 1}, {ID: "b", Weight: 1}, {ID: "c", Weight: 1}}
	shares, err := PartitionInt(10, agents)
	if err != nil {
		t.Fatalf("PartitionInt: %v", err)
	}
	sum := 0
	for _, s := range shares {
		sum += s.Count
	}
	if sum != 10 {
		t.Fatalf("shares sum = %d, want 10", sum)
	}
	for _, s := range shares {
		if s.Count < 3 || s.Count > 4 {
			t.Fatalf("expected near-even split, got %+v", s)
		}
	}
}

func TestPartitionIntWeighted(t *testing.T) {
	agents := []WeightedAgent{{ID: "heavy", Weight: 3}, {ID: "light", Weight: 1}}
	shares, err := PartitionInt(100, agents)
	if err != nil {
		t.Fatalf("PartitionInt: %v", err)
	}
	byID := map[string]int{}
	for _, s := range shares {
		byID[s.ID] = s.Count
	}
	if byID["heavy"] != 75 || byID["light"] != 25 {
		t.Fatalf("expected 75/25 split, got %+v", byID)
	}
}

func TestPartitionIntZeroTotal(t *testing.T) {
	shares, err := PartitionInt(0, []WeightedAgent{{ID: "a", Weight: 1}})
	if err != nil {
		t.Fatalf("PartitionInt: %v", err)
	}
	if shares[0].Count != 0 {
		t.Fatalf("expected zero share for zero total, got %+v", shares)
	}
}

func TestPartitionIntNoAgents(t *testing.T) {
	if _, err := PartitionInt(10, nil); err != ErrNoAgents {
		t.Fatalf("expected ErrNoAgents, got %v", err)
	}
}

func TestHeartbeatMonitorMarksLost(t *testing.T) {
	registry := NewRegistry()
	registry.Join("agent-1", 1, nil)

	lost := make(chan string, 1)
	monitor := NewHeartbeatMonitor(registry, 20*time.Millisecond, 10*time.Millisecond, func(id string) {
		select {
		case lost <- id:
		default:
		}
	})
	monitor.Start()
	defer monitor.Stop()

	select {
	case id := <-lost:
		if id != "agent-1" {
			t.Fatalf("expected agent-1 marked lost, got %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("expected agent to be marked lost within timeout")
	}
}

func TestHeartbeatMonitorDefaults(t *testing.T) {
	monitor := NewHeartbeatMonitor(NewRegistry(), 0, 0, nil)
	if monitor.Timeout() != DefaultHeartbeatTimeout {
		t.Fatalf("expected default timeout, got %v", monitor.Timeout())
	}
	if monitor.Interval() != DefaultMonitorInterval {
		t.Fatalf("expected default interval, got %v", monitor.Interval())
	}
}
