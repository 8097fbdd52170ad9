// Package sinks periodically exports the latest Summary Frame to textfile
// metric formats: Prometheus textfile, OpenTelemetry-style JSON, and Influx
// line protocol. Every sink is stateless across writes — each tick fully
// overwrites the target file from the current frame, so a scrape that races
// a run restart never sees stale partial state.
package sinks

import (
	"context"
	"os"
	"time"

	"github.com/Lythaeon/strest/internal/events"
	"github.com/Lythaeon/strest/internal/metrics"
)

// DefaultInterval is the sink flush cadence when none is configured.
const DefaultInterval = 1000 * time.Millisecond

// Sink writes one frame to its destination, replacing whatever a previous
// tick wrote.
type Sink interface {
	Name() string
	Write(frame *metrics.SummaryFrame) error
}

// FrameSource supplies the latest published frame; nil frames are skipped.
type FrameSource func() *metrics.SummaryFrame

// Runner drives a set of sinks on a fixed interval plus one final write at
// run end. Sink failures are logged and retried next tick, never fatal.
type Runner struct {
	sinks    []Sink
	source   FrameSource
	interval time.Duration
}

// NewRunner builds a Runner; interval <= 0 selects DefaultInterval.
func NewRunner(source FrameSource, interval time.Duration, sinks ...Sink) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{sinks: sinks, source: source, interval: interval}
}

// Run ticks until ctx is cancelled, then performs the final write and
// returns.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.writeAll()
		case <-ctx.Done():
			r.writeAll()
			return
		}
	}
}

// Flush performs one immediate write of every sink (the run-end write when
// the Runner is not used as a long-lived task).
func (r *Runner) Flush() {
	r.writeAll()
}

func (r *Runner) writeAll() {
	frame := r.source()
	if frame == nil {
		return
	}
	el := events.GetGlobalEventLogger()
	for _, s := range r.sinks {
		if err := s.Write(frame); err != nil {
			el.LogSinkError(s.Name(), err)
		}
	}
}

// writeAtomic replaces path with data via a same-directory temp file and
// rename, so readers never observe a torn file.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
