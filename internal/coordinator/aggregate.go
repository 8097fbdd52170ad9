package coordinator

import (
	"encoding/json"
	"sort"

	"github.com/Lythaeon/strest/internal/coordinator/scheduler"
	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/histogram"
	"github.com/Lythaeon/strest/internal/metrics"
	"github.com/Lythaeon/strest/internal/summary"
)

// MergeReports folds per-agent reports into one aggregated view: counters
// sum, histograms merge, and per-second buckets concatenate by second
// index (agents within heartbeat-level clock skew land in the same or an
// adjacent bucket, which the one-second granularity absorbs).
func MergeReports(runID string, reports []*summary.Report) (*summary.Report, error) {
	out := &summary.Report{
		RunID:       runID,
		StatusTally: make(map[int]int64),
		ClassTally:  make(map[string]int64),
	}
	histAll := histogram.New()
	histOk := histogram.New()

	bucketsBySec := make(map[int64]summary.BucketRow)

	for _, r := range reports {
		if r == nil {
			continue
		}
		out.TotalRequests += r.TotalRequests
		out.TotalOk += r.TotalOk
		out.TotalErrors += r.TotalErrors
		out.TotalBytes += r.TotalBytes
		if r.MaxInFlight > out.MaxInFlight {
			out.MaxInFlight = r.MaxInFlight
		}
		if r.ElapsedSeconds > out.ElapsedSeconds {
			out.ElapsedSeconds = r.ElapsedSeconds
		}
		for k, v := range r.StatusTally {
			out.StatusTally[k] += v
		}
		for k, v := range r.ClassTally {
			out.ClassTally[k] += v
		}

		if r.HistAllB64 != "" {
			h, err := histogram.DecodeB64(r.HistAllB64)
			if err != nil {
				return nil, errs.New("coordinator.MergeReports", errs.DistributedProtocol, r.RunID, err)
			}
			histAll.Merge(h)
		}
		if r.HistOkB64 != "" {
			h, err := histogram.DecodeB64(r.HistOkB64)
			if err != nil {
				return nil, errs.New("coordinator.MergeReports", errs.DistributedProtocol, r.RunID, err)
			}
			histOk.Merge(h)
		}

		for _, b := range r.Buckets {
			agg := bucketsBySec[b.SecondIndex]
			agg.SecondIndex = b.SecondIndex
			agg.Requests += b.Requests
			agg.Ok += b.Ok
			agg.Errors += b.Errors
			agg.Timeouts += b.Timeouts
			agg.TransportErrors += b.TransportErrors
			agg.NotExpected += b.NotExpected
			agg.AssertionFailed += b.AssertionFailed
			agg.Bytes += b.Bytes
			// Coarse percentiles cannot be merged exactly from rows; keep
			// the worst observed value per track.
			agg.P50AllNs = maxNs(agg.P50AllNs, b.P50AllNs)
			agg.P90AllNs = maxNs(agg.P90AllNs, b.P90AllNs)
			agg.P99AllNs = maxNs(agg.P99AllNs, b.P99AllNs)
			agg.P50OkNs = maxNs(agg.P50OkNs, b.P50OkNs)
			agg.P90OkNs = maxNs(agg.P90OkNs, b.P90OkNs)
			agg.P99OkNs = maxNs(agg.P99OkNs, b.P99OkNs)
			bucketsBySec[b.SecondIndex] = agg
		}
	}

	if out.TotalRequests > 0 {
		out.ErrorRate = float64(out.TotalErrors) / float64(out.TotalRequests)
	}
	if out.ElapsedSeconds > 0 {
		out.RatePerSec = float64(out.TotalRequests) / out.ElapsedSeconds
	}

	out.PercentilesAll = metrics.ComputePercentiles(histAll)
	out.PercentilesOk = metrics.ComputePercentiles(histOk)
	out.HistAllB64, _ = histAll.EncodeB64()
	out.HistOkB64, _ = histOk.EncodeB64()

	secs := make([]int64, 0, len(bucketsBySec))
	for s := range bucketsBySec {
		secs = append(secs, s)
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i] < secs[j] })
	for _, s := range secs {
		out.Buckets = append(out.Buckets, bucketsBySec[s])
	}
	return out, nil
}

// DecodeReport parses one agent's frame payload into a Report.
func DecodeReport(frame json.RawMessage) (*summary.Report, error) {
	var r summary.Report
	if err := json.Unmarshal(frame, &r); err != nil {
		return nil, errs.New("coordinator.DecodeReport", errs.DistributedProtocol, "", err)
	}
	return &r, nil
}

// LatestReports decodes the most recent frame recorded for every agent
// still participating in aggregation; Lost agents are skipped (their last
// partial data stays in the registry for a reconnect).
func (c *Controller) LatestReports() []*summary.Report {
	var out []*summary.Report
	for _, rec := range c.Registry.List() {
		if rec.ConnectionState == scheduler.StateLost {
			continue
		}
		if len(rec.LastSummaryFrame) == 0 {
			continue
		}
		r, err := DecodeReport(rec.LastSummaryFrame)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

func maxNs(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
