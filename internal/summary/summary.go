// Package summary renders the end-of-run report and its JSON/JSONL/CSV
// export formats. The terminal rendering is color-aware (colors only when
// stdout is a TTY); exports carry enough state (base64 histograms plus raw
// outcomes) for the replay engine to reconstruct the identical report.
package summary

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/Lythaeon/strest/internal/metrics"
)

// BucketRow is one per-second chart bucket flattened for export and
// rendering: counters plus the derived percentile tracks.
type BucketRow struct {
	SecondIndex     int64 `json:"second"`
	Requests        int64 `json:"requests"`
	Ok              int64 `json:"ok"`
	Errors          int64 `json:"errors"`
	Timeouts        int64 `json:"timeouts"`
	TransportErrors int64 `json:"transport_errors"`
	NotExpected     int64 `json:"non_expected"`
	AssertionFailed int64 `json:"assertion_failed"`
	Bytes           int64 `json:"bytes"`
	P50AllNs        int64 `json:"p50_all_ns"`
	P90AllNs        int64 `json:"p90_all_ns"`
	P99AllNs        int64 `json:"p99_all_ns"`
	P50OkNs         int64 `json:"p50_ok_ns"`
	P90OkNs         int64 `json:"p90_ok_ns"`
	P99OkNs         int64 `json:"p99_ok_ns"`
}

// Report is the complete end-of-run summary: cumulative counters, HDR
// percentiles for all and ok attempts, the status/class tallies, and the
// per-second bucket rows bounded by retention.
type Report struct {
	RunID          string  `json:"run_id"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`

	TotalRequests int64   `json:"total_requests"`
	TotalOk       int64   `json:"total_ok"`
	TotalErrors   int64   `json:"total_errors"`
	ErrorRate     float64 `json:"error_rate"`
	RatePerSec    float64 `json:"rate_per_sec"`
	TotalBytes    int64   `json:"total_bytes"`
	MaxInFlight   int     `json:"max_in_flight"`

	PercentilesAll metrics.Percentiles `json:"percentiles_all"`
	PercentilesOk  metrics.Percentiles `json:"percentiles_ok"`

	StatusTally map[int]int64    `json:"status_tally"`
	ClassTally  map[string]int64 `json:"class_tally"`

	HistAllB64 string `json:"hist_all_b64,omitempty"`
	HistOkB64  string `json:"hist_ok_b64,omitempty"`

	Buckets []BucketRow `json:"buckets,omitempty"`
}

// Build assembles a Report from the aggregator's final frame and bucket
// series.
func Build(frame *metrics.SummaryFrame, buckets []*metrics.Bucket) *Report {
	r := &Report{
		RunID:          frame.RunID,
		ElapsedSeconds: frame.ElapsedSeconds,
		TotalRequests:  frame.TotalRequests,
		TotalOk:        frame.TotalOk,
		TotalErrors:    frame.TotalErrors,
		RatePerSec:     frame.RatePerSecond(),
		TotalBytes:     frame.TotalBytes,
		MaxInFlight:    frame.MaxInFlight,
		PercentilesAll: metrics.ComputePercentiles(frame.HistAll),
		PercentilesOk:  metrics.ComputePercentiles(frame.HistOk),
		StatusTally:    frame.StatusTally,
		ClassTally:     frame.ClassTally,
	}
	if frame.TotalRequests > 0 {
		r.ErrorRate = float64(frame.TotalErrors) / float64(frame.TotalRequests)
	}
	if frame.HistAll != nil {
		r.HistAllB64, _ = frame.HistAll.EncodeB64()
	}
	if frame.HistOk != nil {
		r.HistOkB64, _ = frame.HistOk.EncodeB64()
	}
	for _, b := range buckets {
		r.Buckets = append(r.Buckets, BucketRow{
			SecondIndex:     b.SecondIndex,
			Requests:        b.Requests,
			Ok:              b.Ok,
			Errors:          b.Errors(),
			Timeouts:        b.TimeoutCount,
			TransportErrors: b.TransportCount,
			NotExpected:     b.NotExpectedCount,
			AssertionFailed: b.AssertionFailed,
			Bytes:           b.Bytes,
			P50AllNs:        b.PercentileAllNs(50),
			P90AllNs:        b.PercentileAllNs(90),
			P99AllNs:        b.PercentileAllNs(99),
			P50OkNs:         b.PercentileOkNs(50),
			P90OkNs:         b.PercentileOkNs(90),
			P99OkNs:         b.PercentileOkNs(99),
		})
	}
	return r
}

// StdoutIsTTY reports whether stdout is an interactive terminal, gating
// color output.
func StdoutIsTTY() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Render writes the human-readable summary to w. When colorize is false
// every line is plain text (non-TTY stdout, or --no-color).
func Render(w io.Writer, r *Report, colorize bool) {
	heading := color.New(color.Bold).SprintFunc()
	good := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	if !colorize {
		heading = fmt.Sprint
		good = fmt.Sprint
		bad = fmt.Sprint
	}

	fmt.Fprintf(w, "%s\n", heading("Summary"))
	fmt.Fprintf(w, "  run          %s\n", r.RunID)
	fmt.Fprintf(w, "  duration     %.2fs\n", r.ElapsedSeconds)
	fmt.Fprintf(w, "  requests     %d (%.1f/s)\n", r.TotalRequests, r.RatePerSec)
	if r.TotalErrors > 0 {
		fmt.Fprintf(w, "  errors       %s (%.2f%%)\n", bad(fmt.Sprintf("%d", r.TotalErrors)), r.ErrorRate*100)
	} else {
		fmt.Fprintf(w, "  errors       %s\n", good("0"))
	}
	fmt.Fprintf(w, "  bytes        %d\n", r.TotalBytes)
	fmt.Fprintf(w, "  max inflight %d\n", r.MaxInFlight)

	fmt.Fprintf(w, "%s\n", heading("Latency (all)"))
	renderPercentiles(w, r.PercentilesAll)
	if r.TotalOk > 0 && r.TotalOk != r.TotalRequests {
		fmt.Fprintf(w, "%s\n", heading("Latency (ok)"))
		renderPercentiles(w, r.PercentilesOk)
	}

	if len(r.ClassTally) > 0 {
		fmt.Fprintf(w, "%s\n", heading("Outcomes"))
		for _, k := range sortedKeys(r.ClassTally) {
			fmt.Fprintf(w, "  %-18s %d\n", k, r.ClassTally[k])
		}
	}
	if len(r.StatusTally) > 0 {
		fmt.Fprintf(w, "%s\n", heading("Status codes"))
		codes := make([]int, 0, len(r.StatusTally))
		for c := range r.StatusTally {
			codes = append(codes, c)
		}
		sort.Ints(codes)
		for _, c := range codes {
			label := fmt.Sprintf("%d", c)
			if c == 0 {
				label = "transport"
			}
			fmt.Fprintf(w, "  %-18s %d\n", label, r.StatusTally[c])
		}
	}
}

func renderPercentiles(w io.Writer, p metrics.Percentiles) {
	fmt.Fprintf(w, "  p50   %s\n", fmtNs(p.P50))
	fmt.Fprintf(w, "  p90   %s\n", fmtNs(p.P90))
	fmt.Fprintf(w, "  p99   %s\n", fmtNs(p.P99))
	fmt.Fprintf(w, "  p99.9 %s\n", fmtNs(p.P999))
	fmt.Fprintf(w, "  mean  %s\n", fmtNs(int64(p.Mean)))
	fmt.Fprintf(w, "  max   %s\n", fmtNs(p.Max))
}

func fmtNs(ns int64) string {
	return time.Duration(ns).Round(time.Microsecond).String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
