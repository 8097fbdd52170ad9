package ui

import (
	"testing"
	"time"

	"github.com/Lythaeon/strest/internal/histogram"
	"github.com/Lythaeon/strest/internal/metrics"
	"github.com/Lythaeon/strest/internal/types"
)

func frameWith(requests, ok int64) *metrics.SummaryFrame {
	hAll := histogram.New()
	hOk := histogram.New()
	for i := int64(0); i < requests; i++ {
		hAll.RecordValue((i + 1) * 1_000_000)
	}
	for i := int64(0); i < ok; i++ {
		hOk.RecordValue((i + 1) * 1_000_000)
	}
	return &metrics.SummaryFrame{
		RunID:          "run-ui",
		ElapsedSeconds: 5,
		TotalRequests:  requests,
		TotalOk:        ok,
		TotalErrors:    requests - ok,
		HistAll:        hAll,
		HistOk:         hOk,
	}
}

func bucketSeries(seconds int, perSecond int64) []*metrics.Bucket {
	out := make([]*metrics.Bucket, 0, seconds)
	for s := 0; s < seconds; s++ {
		b := metrics.NewBucket(int64(s))
		for i := int64(0); i < perSecond; i++ {
			b.Add(types.RequestOutcome{
				TimestampUs: int64(s)*1_000_000 + i,
				LatencyNs:   50 * 1_000_000,
				Status:      200,
				Class:       types.OutcomeOk,
			})
		}
		out = append(out, b)
	}
	return out
}

func TestSnapshotReflectsFrame(t *testing.T) {
	frame := frameWith(100, 95)
	m := NewModel("run-ui", time.Now(), func() *metrics.SummaryFrame { return frame }, 0).
		WithState(func() string { return "Running" }).
		WithRate(func() float64 { return 250 })

	snap := m.Snapshot()

	if snap.State != "Running" {
		t.Errorf("State = %s", snap.State)
	}
	if snap.TargetAt != 250 {
		t.Errorf("TargetAt = %f", snap.TargetAt)
	}
	if snap.TotalRequests != 100 || snap.TotalErrors != 5 {
		t.Errorf("totals = %d/%d", snap.TotalRequests, snap.TotalErrors)
	}
	if snap.P99Ns == 0 {
		t.Error("expected non-zero P99")
	}
}

func TestSnapshotNilFrame(t *testing.T) {
	m := NewModel("run-ui", time.Now(), func() *metrics.SummaryFrame { return nil }, 0)
	snap := m.Snapshot()
	if snap.TotalRequests != 0 || snap.P50Ns != 0 {
		t.Errorf("nil frame should yield zero counters: %+v", snap)
	}
}

func TestWindowExcludesTrailingPartialSecond(t *testing.T) {
	buckets := bucketSeries(10, 100)
	m := NewModel("run-ui", time.Now(), func() *metrics.SummaryFrame { return nil }, 60).
		WithBuckets(func() []*metrics.Bucket { return buckets })

	snap := m.Snapshot()

	if len(snap.Window) != 9 {
		t.Fatalf("window has %d samples, want 9 (trailing second excluded)", len(snap.Window))
	}
	last := snap.Window[len(snap.Window)-1]
	if last.SecondIndex != 8 {
		t.Errorf("last window second = %d, want 8", last.SecondIndex)
	}
}

func TestWindowBoundedBySize(t *testing.T) {
	buckets := bucketSeries(120, 10)
	m := NewModel("run-ui", time.Now(), func() *metrics.SummaryFrame { return nil }, 30).
		WithBuckets(func() []*metrics.Bucket { return buckets })

	snap := m.Snapshot()
	if len(snap.Window) != 30 {
		t.Fatalf("window has %d samples, want 30", len(snap.Window))
	}
	if snap.Window[0].SecondIndex != 89 {
		t.Errorf("window starts at second %d, want 89", snap.Window[0].SecondIndex)
	}
}

func TestAgentsOnlyInDistributedMode(t *testing.T) {
	m := NewModel("run-ui", time.Now(), func() *metrics.SummaryFrame { return nil }, 0)
	if got := m.Snapshot().Agents; got != nil {
		t.Errorf("Agents = %v, want nil without an agent source", got)
	}

	m.WithAgents(func() []AgentRow {
		return []AgentRow{{ID: "agent-1", Weight: 2, State: "Running"}}
	})
	got := m.Snapshot().Agents
	if len(got) != 1 || got[0].ID != "agent-1" {
		t.Errorf("Agents = %v", got)
	}
}
