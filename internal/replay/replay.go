// Package replay reconstructs run summaries, per-second buckets, and chart
// series from persisted metric logs, without generating traffic. The same
// aggregation code the live pipeline runs is driven synchronously from a
// single goroutine over timestamp-sorted outcomes, which is what makes a
// replayed summary byte-identical to the live one for identical inputs and
// retention parameters.
package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/histogram"
	"github.com/Lythaeon/strest/internal/metrics"
	"github.com/Lythaeon/strest/internal/summary"
	"github.com/Lythaeon/strest/internal/types"
)

// Options configures one replay pass.
type Options struct {
	RunID     string
	Window    Window
	Warmup    time.Duration
	Retention config.RetentionConfig

	// SnapshotInterval, when positive, freezes the aggregator every
	// interval of replayed time and hands the frame to OnSnapshot.
	SnapshotInterval time.Duration
	OnSnapshot       func(Snapshot)
}

// Snapshot is one frozen point in a replay: the cumulative frame plus how
// far into the replayed timeline it was taken.
type Snapshot struct {
	At     time.Duration
	Frame  *metrics.SummaryFrame
	Report *summary.Report
}

// Result is the outcome of a full replay pass.
type Result struct {
	Report  *summary.Report
	Frame   *metrics.SummaryFrame
	Buckets []*metrics.Bucket
	Samples []types.RequestOutcome
}

// Run replays outcomes (any order; they are sorted here if needed) through
// a fresh aggregator and returns the reconstructed result.
func Run(outcomes []types.RequestOutcome, opts Options) (*Result, error) {
	if !sort.SliceIsSorted(outcomes, func(i, j int) bool { return outcomes[i].TimestampUs < outcomes[j].TimestampUs }) {
		sorted := append([]types.RequestOutcome(nil), outcomes...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimestampUs < sorted[j].TimestampUs })
		outcomes = sorted
	}
	outcomes = opts.Window.Apply(outcomes)

	runID := opts.RunID
	if runID == "" {
		runID = "replay"
	}
	agg := metrics.NewAggregator(runID, opts.Retention, opts.Warmup, time.Now(), nil)

	var (
		base       int64
		nextSnapAt time.Duration
	)
	if len(outcomes) > 0 {
		base = outcomes[0].TimestampUs
	}
	if opts.SnapshotInterval > 0 {
		nextSnapAt = opts.SnapshotInterval
	}

	for _, o := range outcomes {
		if opts.SnapshotInterval > 0 && opts.OnSnapshot != nil {
			elapsed := time.Duration(o.TimestampUs-base) * time.Microsecond
			for nextSnapAt <= elapsed {
				emitSnapshot(agg, nextSnapAt, opts.OnSnapshot)
				nextSnapAt += opts.SnapshotInterval
			}
		}
		agg.Ingest(o)
	}
	agg.Publish()

	frame := finalizeFrame(agg, outcomes)
	report := summary.Build(frame, agg.Buckets())
	return &Result{
		Report:  report,
		Frame:   frame,
		Buckets: agg.Buckets(),
		Samples: agg.ChartSamples(),
	}, nil
}

// RunFromPath loads path in format (DetectFormat(path) when format is
// empty) and replays it. FormatJSON inputs skip aggregation entirely: the
// report is decoded as-is and its histograms are reconstructed from their
// encoded form.
func RunFromPath(path string, format Format, opts Options) (*Result, error) {
	if format == "" {
		format = DetectFormat(path)
	}
	if format == FormatJSON {
		report, err := ReadSummary(path)
		if err != nil {
			return nil, err
		}
		return resultFromReport(report)
	}
	outcomes, err := ReadOutcomes(path, format)
	if err != nil {
		return nil, err
	}
	return Run(outcomes, opts)
}

// finalizeFrame pins the frame's elapsed time to the replayed data range
// rather than wall time, so the same input always produces the same
// summary.
func finalizeFrame(agg *metrics.Aggregator, outcomes []types.RequestOutcome) *metrics.SummaryFrame {
	frame := agg.Latest().Clone()
	if len(outcomes) > 0 {
		spanUs := outcomes[len(outcomes)-1].TimestampUs - outcomes[0].TimestampUs
		frame.ElapsedSeconds = float64(spanUs) / 1e6
	} else {
		frame.ElapsedSeconds = 0
	}
	return frame
}

func emitSnapshot(agg *metrics.Aggregator, at time.Duration, fn func(Snapshot)) {
	agg.Publish()
	frame := agg.Latest().Clone()
	frame.ElapsedSeconds = at.Seconds()
	fn(Snapshot{
		At:     at,
		Frame:  frame,
		Report: summary.Build(frame, agg.Buckets()),
	})
}

func resultFromReport(report *summary.Report) (*Result, error) {
	frame, err := FrameFromReport(report)
	if err != nil {
		return nil, err
	}
	return &Result{Report: report, Frame: frame}, nil
}

// FrameFromReport rebuilds a SummaryFrame from a decoded summary export,
// including its histograms.
func FrameFromReport(r *summary.Report) (*metrics.SummaryFrame, error) {
	frame := &metrics.SummaryFrame{
		RunID:          r.RunID,
		ElapsedSeconds: r.ElapsedSeconds,
		TotalRequests:  r.TotalRequests,
		TotalOk:        r.TotalOk,
		TotalErrors:    r.TotalErrors,
		StatusTally:    r.StatusTally,
		ClassTally:     r.ClassTally,
		TotalBytes:     r.TotalBytes,
		MaxInFlight:    r.MaxInFlight,
	}
	if r.HistAllB64 != "" {
		h, err := decodeHist(r.HistAllB64)
		if err != nil {
			return nil, err
		}
		frame.HistAll = h
	}
	if r.HistOkB64 != "" {
		h, err := decodeHist(r.HistOkB64)
		if err != nil {
			return nil, err
		}
		frame.HistOk = h
	}
	return frame, nil
}

// SnapshotWriter persists replay snapshots to a directory in one export
// format per call, named by their position on the replayed timeline.
type SnapshotWriter struct {
	Dir    string
	Format Format
}

// Write persists snap; json snapshots carry the full report, jsonl/csv
// carry the chart-sample outcomes retained at that instant.
func (w SnapshotWriter) Write(snap Snapshot, samples []types.RequestOutcome) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return errs.New("SnapshotWriter.Write", errs.LogIo, w.Dir, err)
	}
	name := fmt.Sprintf("snapshot-%08dms", snap.At.Milliseconds())
	switch w.Format {
	case FormatJSON:
		return summary.ExportJSON(filepath.Join(w.Dir, name+".json"), snap.Report)
	case FormatJSONL:
		return summary.ExportJSONL(filepath.Join(w.Dir, name+".jsonl"), snap.Report, samples)
	case FormatCSV:
		return summary.ExportCSV(filepath.Join(w.Dir, name+".csv"), samples)
	default:
		return errs.New("SnapshotWriter.Write", errs.ConfigValidation, string(w.Format),
			errBadFormat(w.Format))
	}
}

// ClampBuckets trims a bucket series to its own data range: [first, last]
// seconds that actually contain requests. Compare mode clamps each
// snapshot's timeline independently so a shorter run's trailing panels do
// not drop to zero against a longer one.
func ClampBuckets(buckets []*metrics.Bucket) []*metrics.Bucket {
	lo := 0
	for lo < len(buckets) && buckets[lo].Requests == 0 {
		lo++
	}
	hi := len(buckets)
	for hi > lo && buckets[hi-1].Requests == 0 {
		hi--
	}
	return buckets[lo:hi]
}

func decodeHist(b64 string) (*histogram.Histogram, error) {
	h, err := histogram.DecodeB64(b64)
	if err != nil {
		return nil, errs.New("replay.decodeHist", errs.LogIo, "", err)
	}
	return h, nil
}
