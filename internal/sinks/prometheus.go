package sinks

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/metrics"
)

// PrometheusTextfile renders the frame in the node_exporter textfile
// collector format.
type PrometheusTextfile struct {
	Path string
}

// NewPrometheusTextfile builds a sink writing to path (conventionally
// *.prom inside the textfile collector directory).
func NewPrometheusTextfile(path string) *PrometheusTextfile {
	return &PrometheusTextfile{Path: path}
}

func (s *PrometheusTextfile) Name() string { return "prometheus" }

func (s *PrometheusTextfile) Write(frame *metrics.SummaryFrame) error {
	var buf bytes.Buffer

	writeMetric := func(name, help, typ string, value float64, labels string) {
		fmt.Fprintf(&buf, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&buf, "# TYPE %s %s\n", name, typ)
		if labels != "" {
			fmt.Fprintf(&buf, "%s{%s} %g\n", name, labels, value)
		} else {
			fmt.Fprintf(&buf, "%s %g\n", name, value)
		}
	}

	runLabel := fmt.Sprintf("run_id=%q", frame.RunID)
	writeMetric("strest_requests_total", "Total attempts recorded.", "counter",
		float64(frame.TotalRequests), runLabel)
	writeMetric("strest_requests_ok_total", "Attempts that satisfied the expected-status policy and assertions.", "counter",
		float64(frame.TotalOk), runLabel)
	writeMetric("strest_errors_total", "Attempts with any non-Ok outcome class.", "counter",
		float64(frame.TotalErrors), runLabel)
	writeMetric("strest_bytes_total", "Response body bytes streamed.", "counter",
		float64(frame.TotalBytes), runLabel)
	writeMetric("strest_max_inflight", "Highest concurrency observed at dispatch.", "gauge",
		float64(frame.MaxInFlight), runLabel)
	writeMetric("strest_rate_per_second", "Mean attempt rate so far.", "gauge",
		frame.RatePerSecond(), runLabel)

	pAll := metrics.ComputePercentiles(frame.HistAll)
	pOk := metrics.ComputePercentiles(frame.HistOk)
	fmt.Fprintf(&buf, "# HELP strest_latency_seconds Attempt latency quantiles from the HDR histogram.\n")
	fmt.Fprintf(&buf, "# TYPE strest_latency_seconds summary\n")
	for _, q := range []struct {
		q  string
		ns int64
	}{
		{"0.5", pAll.P50}, {"0.9", pAll.P90}, {"0.99", pAll.P99}, {"0.999", pAll.P999},
	} {
		fmt.Fprintf(&buf, "strest_latency_seconds{%s,track=\"all\",quantile=%q} %g\n", runLabel, q.q, float64(q.ns)/1e9)
	}
	for _, q := range []struct {
		q  string
		ns int64
	}{
		{"0.5", pOk.P50}, {"0.9", pOk.P90}, {"0.99", pOk.P99}, {"0.999", pOk.P999},
	} {
		fmt.Fprintf(&buf, "strest_latency_seconds{%s,track=\"ok\",quantile=%q} %g\n", runLabel, q.q, float64(q.ns)/1e9)
	}

	fmt.Fprintf(&buf, "# HELP strest_status_total Attempts by protocol status code (0 is a transport error).\n")
	fmt.Fprintf(&buf, "# TYPE strest_status_total counter\n")
	codes := make([]int, 0, len(frame.StatusTally))
	for c := range frame.StatusTally {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		fmt.Fprintf(&buf, "strest_status_total{%s,code=\"%d\"} %d\n", runLabel, c, frame.StatusTally[c])
	}

	if err := writeAtomic(s.Path, buf.Bytes()); err != nil {
		return errs.New("PrometheusTextfile.Write", errs.Sink, s.Path, err)
	}
	return nil
}
