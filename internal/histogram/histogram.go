// Package histogram wraps the HDR histogram used throughout the metrics
// pipeline: three significant digits, a one-hour maximum
// trackable value, mergeable and base64-serializable for wire transport.
package histogram

import (
	"encoding/base64"
	"encoding/json"
	"time"

	hdr "github.com/HdrHistogram/hdrhistogram-go"
)

// MaxTrackableNs is one hour in nanoseconds, the ceiling on any latency this
// histogram can record without saturating to the max bucket.
const MaxTrackableNs = int64(time.Hour)

// SignificantFigures is the precision every strest histogram is built with.
const SignificantFigures = 3

// Histogram is a thin wrapper around hdrhistogram-go giving it the merge
// and base64 (de)serialization shape the wire protocol and replay engine
// need.
type Histogram struct {
	h *hdr.Histogram
}

// New constructs an empty histogram tracking [1, MaxTrackableNs] at three
// significant figures.
func New() *Histogram {
	return &Histogram{h: hdr.New(1, MaxTrackableNs, SignificantFigures)}
}

// RecordValue records latencyNs, clamping to MaxTrackableNs rather than
// erroring — a run must never drop a histogram update.
func (m *Histogram) RecordValue(latencyNs int64) {
	if latencyNs < 1 {
		latencyNs = 1
	}
	if latencyNs > MaxTrackableNs {
		latencyNs = MaxTrackableNs
	}
	_ = m.h.RecordValue(latencyNs)
}

// TotalCount is the number of values recorded.
func (m *Histogram) TotalCount() int64 { return m.h.TotalCount() }

// ValueAtPercentile returns the nanosecond latency at p (0-100).
func (m *Histogram) ValueAtPercentile(p float64) int64 {
	if m.h.TotalCount() == 0 {
		return 0
	}
	return m.h.ValueAtPercentile(p)
}

// Mean, Max and Min pass through to the underlying histogram; all return 0
// on an empty histogram instead of NaN.
func (m *Histogram) Mean() float64 {
	if m.h.TotalCount() == 0 {
		return 0
	}
	return m.h.Mean()
}

func (m *Histogram) Max() int64 { return m.h.Max() }
func (m *Histogram) Min() int64 {
	if m.h.TotalCount() == 0 {
		return 0
	}
	return m.h.Min()
}

// Merge folds other into m in place. Merge is commutative and associative
// up to the histogram's precision because the
// underlying HDR representation merges by per-bucket count addition.
func (m *Histogram) Merge(other *Histogram) {
	if other == nil {
		return
	}
	m.h.Merge(other.h)
}

// Clone returns an independent copy, used when freezing an immutable
// Summary Frame without holding the aggregator's
// histogram across a suspension point.
func (m *Histogram) Clone() *Histogram {
	return &Histogram{h: hdr.Import(m.h.Export())}
}

// EncodeB64 serializes the histogram snapshot as JSON (uncompressed), base64
// encoded, for SummaryFrame transport.
func (m *Histogram) EncodeB64() (string, error) {
	data, err := json.Marshal(m.h.Export())
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeB64 reconstructs a histogram from EncodeB64's output.
func DecodeB64(s string) (*Histogram, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var snap hdr.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &Histogram{h: hdr.Import(&snap)}, nil
}
