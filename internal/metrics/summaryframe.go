package metrics

import "github.com/Lythaeon/strest/internal/histogram"

// SummaryFrame is an immutable snapshot of run-wide metrics, cheap to clone
// and safe to hand to a reader without locking. The aggregator publishes a
// fresh frame via atomic pointer swap; nothing ever mutates a frame once
// published.
type SummaryFrame struct {
	RunID          string
	ElapsedSeconds float64

	TotalRequests int64
	TotalOk       int64
	TotalErrors   int64

	StatusTally map[int]int64

	ClassTally map[string]int64

	TotalBytes  int64
	MaxInFlight int

	HistAll *histogram.Histogram
	HistOk  *histogram.Histogram
}

// Percentiles is the canonical set the end-of-run summary reports:
// P50/P90/P99/P99.9, mean, and max.
type Percentiles struct {
	P50  int64   `json:"p50_ns"`
	P90  int64   `json:"p90_ns"`
	P99  int64   `json:"p99_ns"`
	P999 int64   `json:"p999_ns"`
	Mean float64 `json:"mean_ns"`
	Max  int64   `json:"max_ns"`
}

// ComputePercentiles derives the canonical percentile set from h. A nil or
// empty histogram returns the zero value rather than NaN/dividing by zero
//.
func ComputePercentiles(h *histogram.Histogram) Percentiles {
	if h == nil || h.TotalCount() == 0 {
		return Percentiles{}
	}
	return Percentiles{
		P50:  h.ValueAtPercentile(50),
		P90:  h.ValueAtPercentile(90),
		P99:  h.ValueAtPercentile(99),
		P999: h.ValueAtPercentile(99.9),
		Mean: h.Mean(),
		Max:  h.Max(),
	}
}

// RatePerSecond returns TotalRequests / ElapsedSeconds, 0 if ElapsedSeconds
// is not yet positive.
func (f *SummaryFrame) RatePerSecond() float64 {
	if f.ElapsedSeconds <= 0 {
		return 0
	}
	return float64(f.TotalRequests) / f.ElapsedSeconds
}

// Clone returns a deep-enough copy safe to mutate independently: maps are
// copied, histograms are cloned.
func (f *SummaryFrame) Clone() *SummaryFrame {
	out := *f
	out.StatusTally = make(map[int]int64, len(f.StatusTally))
	for k, v := range f.StatusTally {
		out.StatusTally[k] = v
	}
	out.ClassTally = make(map[string]int64, len(f.ClassTally))
	for k, v := range f.ClassTally {
		out.ClassTally[k] = v
	}
	if f.HistAll != nil {
		out.HistAll = f.HistAll.Clone()
	}
	if f.HistOk != nil {
		out.HistOk = f.HistOk.Clone()
	}
	return &out
}
