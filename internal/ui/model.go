// Package ui exposes the read-only data model a terminal frontend observes:
// a point-in-time Snapshot of run state, cumulative counters, latency
// percentiles, and the trailing per-second window. Widget rendering is out
// of scope; a frontend polls Snapshot() on its own refresh cadence and
// never blocks the pipeline.
package ui

import (
	"sync/atomic"
	"time"

	"github.com/Lythaeon/strest/internal/metrics"
)

// DefaultWindowSeconds is the trailing chart window when none is
// configured.
const DefaultWindowSeconds = 60

// SecondSample is one trailing-window entry: the request/error rate and
// coarse percentiles observed in one whole second.
type SecondSample struct {
	SecondIndex int64
	Requests    int64
	Errors      int64
	P50Ns       int64
	P90Ns       int64
	P99Ns       int64
}

// AgentRow is the controller-side view of one connected agent, present only
// in distributed mode.
type AgentRow struct {
	ID              string
	Weight          float64
	State           string
	LastHeartbeatAt time.Time
	Requests        int64
}

// Snapshot is everything a frontend needs to paint one refresh: immutable
// once returned.
type Snapshot struct {
	RunID    string
	State    string
	Elapsed  time.Duration
	TargetAt float64 // instantaneous profile rate, 0 in closed-loop mode

	TotalRequests int64
	TotalOk       int64
	TotalErrors   int64
	RatePerSec    float64
	TotalBytes    int64
	MaxInFlight   int

	P50Ns  int64
	P90Ns  int64
	P99Ns  int64
	P999Ns int64

	Window []SecondSample

	Agents []AgentRow
}

// StateSource reports the engine's current lifecycle phase name.
type StateSource func() string

// RateSource reports the instantaneous profile target rate.
type RateSource func() float64

// BucketSource returns the chart bucket series built so far.
type BucketSource func() []*metrics.Bucket

// AgentSource returns the agent table in distributed mode; nil otherwise.
type AgentSource func() []AgentRow

// Model assembles Snapshots from the pipeline's read-mostly published
// state. All sources must be safe for concurrent use; the model itself
// holds no locks.
type Model struct {
	runID   string
	started time.Time

	frames  func() *metrics.SummaryFrame
	state   StateSource
	rate    RateSource
	buckets BucketSource
	agents  AgentSource

	windowSeconds int

	lastRefresh atomic.Int64
}

// NewModel builds a model over the latest-frame source. windowSeconds
// bounds the trailing per-second window handed to the frontend; <= 0
// selects the default UI window.
func NewModel(runID string, started time.Time, frames func() *metrics.SummaryFrame, windowSeconds int) *Model {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	return &Model{
		runID:         runID,
		started:       started,
		frames:        frames,
		windowSeconds: windowSeconds,
	}
}

// WithState attaches an engine state source.
func (m *Model) WithState(s StateSource) *Model { m.state = s; return m }

// WithRate attaches a profile rate source.
func (m *Model) WithRate(r RateSource) *Model { m.rate = r; return m }

// WithBuckets attaches the chart bucket source for the trailing window.
func (m *Model) WithBuckets(b BucketSource) *Model { m.buckets = b; return m }

// WithAgents attaches the distributed-mode agent table source.
func (m *Model) WithAgents(a AgentSource) *Model { m.agents = a; return m }

// Snapshot assembles one immutable view of the run right now.
func (m *Model) Snapshot() Snapshot {
	m.lastRefresh.Store(time.Now().UnixNano())

	snap := Snapshot{
		RunID:   m.runID,
		Elapsed: time.Since(m.started),
	}
	if m.state != nil {
		snap.State = m.state()
	}
	if m.rate != nil {
		snap.TargetAt = m.rate()
	}

	if frame := m.frames(); frame != nil {
		snap.TotalRequests = frame.TotalRequests
		snap.TotalOk = frame.TotalOk
		snap.TotalErrors = frame.TotalErrors
		snap.RatePerSec = frame.RatePerSecond()
		snap.TotalBytes = frame.TotalBytes
		snap.MaxInFlight = frame.MaxInFlight
		p := metrics.ComputePercentiles(frame.HistAll)
		snap.P50Ns = p.P50
		snap.P90Ns = p.P90
		snap.P99Ns = p.P99
		snap.P999Ns = p.P999
	}

	if m.buckets != nil {
		snap.Window = trailingWindow(m.buckets(), m.windowSeconds)
	}
	if m.agents != nil {
		snap.Agents = m.agents()
	}
	return snap
}

// LastRefresh reports when Snapshot was last called, letting a supervisor
// detect a stalled frontend.
func (m *Model) LastRefresh() time.Time {
	ns := m.lastRefresh.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// trailingWindow keeps the last windowSeconds whole-second buckets,
// excluding the trailing partial second (the highest-index bucket is still
// filling and would dip every chart's right edge).
func trailingWindow(buckets []*metrics.Bucket, windowSeconds int) []SecondSample {
	if len(buckets) <= 1 {
		return nil
	}
	complete := buckets[:len(buckets)-1]
	if len(complete) > windowSeconds {
		complete = complete[len(complete)-windowSeconds:]
	}
	out := make([]SecondSample, 0, len(complete))
	for _, b := range complete {
		out = append(out, SecondSample{
			SecondIndex: b.SecondIndex,
			Requests:    b.Requests,
			Errors:      b.Errors(),
			P50Ns:       b.PercentileAllNs(50),
			P90Ns:       b.PercentileAllNs(90),
			P99Ns:       b.PercentileAllNs(99),
		})
	}
	return out
}
