package summary

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/types"
)

// JSONLRecordType distinguishes the two line shapes in a JSONL export.
const (
	JSONLTypeRun     = "run"
	JSONLTypeOutcome = "outcome"
)

// JSONLRun is the first line of a JSONL export: run identity plus the
// base64 histograms, so a reader can verify its rebuilt histograms against
// the live ones.
type JSONLRun struct {
	Type       string `json:"type"`
	RunID      string `json:"run_id"`
	HistAllB64 string `json:"hist_all_b64,omitempty"`
	HistOkB64  string `json:"hist_ok_b64,omitempty"`
}

// JSONLOutcome is one attempt in a JSONL export. Class is the outcome
// class's canonical name.
type JSONLOutcome struct {
	Type            string `json:"type"`
	TimestampUs     int64  `json:"ts_us"`
	LatencyNs       int64  `json:"latency_ns"`
	Status          int    `json:"status"`
	Class           string `json:"outcome_class"`
	ResponseBytes   int64  `json:"response_bytes"`
	InFlightAtStart int    `json:"in_flight_at_start"`
	StepIndex       int    `json:"step_index"`
}

// ExportJSON writes the full report as one JSON document.
func ExportJSON(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.New("summary.ExportJSON", errs.LogIo, path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return errs.New("summary.ExportJSON", errs.LogIo, path, err)
	}
	return nil
}

// ExportJSONL writes a run header line followed by one line per outcome.
// Replaying the outcome lines through a fresh aggregator reproduces the
// exact histograms named in the header only when outcomes holds every
// recorded post-warmup outcome; a reservoir-capped or backpressure-sampled
// slice yields an approximation.
func ExportJSONL(path string, r *Report, outcomes []types.RequestOutcome) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.New("summary.ExportJSONL", errs.LogIo, path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	if err := enc.Encode(JSONLRun{
		Type:       JSONLTypeRun,
		RunID:      r.RunID,
		HistAllB64: r.HistAllB64,
		HistOkB64:  r.HistOkB64,
	}); err != nil {
		return errs.New("summary.ExportJSONL", errs.LogIo, path, err)
	}
	for _, o := range outcomes {
		rec := JSONLOutcome{
			Type:            JSONLTypeOutcome,
			TimestampUs:     o.TimestampUs,
			LatencyNs:       o.LatencyNs,
			Status:          o.Status,
			Class:           o.Class.String(),
			ResponseBytes:   o.ResponseBytes,
			InFlightAtStart: o.InFlightAtStart,
			StepIndex:       o.StepIndex,
		}
		if err := enc.Encode(rec); err != nil {
			return errs.New("summary.ExportJSONL", errs.LogIo, path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return errs.New("summary.ExportJSONL", errs.LogIo, path, err)
	}
	return nil
}

// CSVHeader is the column row an outcome CSV export starts with; the
// columns match the raw shard log format.
const CSVHeader = "ts_us,latency_ns,status,outcome_class,response_bytes,in_flight_at_start"

// ExportCSV writes one CSV row per outcome, preceded by a header row.
func ExportCSV(path string, outcomes []types.RequestOutcome) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.New("summary.ExportCSV", errs.LogIo, path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if _, err := fmt.Fprintln(w, CSVHeader); err != nil {
		return errs.New("summary.ExportCSV", errs.LogIo, path, err)
	}
	for _, o := range outcomes {
		_, err := fmt.Fprintf(w, "%d,%d,%d,%s,%d,%d\n",
			o.TimestampUs, o.LatencyNs, o.Status, o.Class.String(), o.ResponseBytes, o.InFlightAtStart)
		if err != nil {
			return errs.New("summary.ExportCSV", errs.LogIo, path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return errs.New("summary.ExportCSV", errs.LogIo, path, err)
	}
	return nil
}
