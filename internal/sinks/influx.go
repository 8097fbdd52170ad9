package sinks

import (
	"bytes"
	"fmt"
	"time"

	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/metrics"
)

// InfluxLine renders the frame as Influx line protocol, one measurement
// per write with the run id as a tag.
type InfluxLine struct {
	Path string
}

// NewInfluxLine builds a sink writing to path.
func NewInfluxLine(path string) *InfluxLine {
	return &InfluxLine{Path: path}
}

func (s *InfluxLine) Name() string { return "influx" }

func (s *InfluxLine) Write(frame *metrics.SummaryFrame) error {
	ts := time.Now().UnixNano()
	pAll := metrics.ComputePercentiles(frame.HistAll)
	pOk := metrics.ComputePercentiles(frame.HistOk)

	var buf bytes.Buffer
	fmt.Fprintf(&buf,
		"strest,run_id=%s requests=%di,ok=%di,errors=%di,bytes=%di,max_inflight=%di,rate=%g %d\n",
		frame.RunID,
		frame.TotalRequests, frame.TotalOk, frame.TotalErrors,
		frame.TotalBytes, frame.MaxInFlight, frame.RatePerSecond(), ts)
	fmt.Fprintf(&buf,
		"strest_latency,run_id=%s,track=all p50=%di,p90=%di,p99=%di,p999=%di,mean=%g,max=%di %d\n",
		frame.RunID, pAll.P50, pAll.P90, pAll.P99, pAll.P999, pAll.Mean, pAll.Max, ts)
	fmt.Fprintf(&buf,
		"strest_latency,run_id=%s,track=ok p50=%di,p90=%di,p99=%di,p999=%di,mean=%g,max=%di %d\n",
		frame.RunID, pOk.P50, pOk.P90, pOk.P99, pOk.P999, pOk.Mean, pOk.Max, ts)

	if err := writeAtomic(s.Path, buf.Bytes()); err != nil {
		return errs.New("InfluxLine.Write", errs.Sink, s.Path, err)
	}
	return nil
}
