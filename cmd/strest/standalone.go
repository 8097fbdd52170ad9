package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	cfgpkg "github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/events"
	"github.com/Lythaeon/strest/internal/loadgen"
	"github.com/Lythaeon/strest/internal/metrics"
	"github.com/Lythaeon/strest/internal/retention"
	"github.com/Lythaeon/strest/internal/sinks"
	"github.com/Lythaeon/strest/internal/summary"
	"github.com/Lythaeon/strest/internal/transport"
	"github.com/Lythaeon/strest/internal/types"
	"github.com/Lythaeon/strest/internal/ui"
)

// runStandalone drives a local run end to end: engine, aggregator, sinks,
// progress readout, then the summary and any exports.
func runStandalone(ctx context.Context, f *cliFlags) int {
	sc, err := loadScenario(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	cfg, err := buildRunConfig(f, sc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	events.SetGlobalEventLogger(events.NewEventLogger(cfg.RunID))

	adapter, ok := transport.DefaultRegistry.Get(cfg.TransportKind)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown transport %q (have %v)\n",
			cfg.TransportKind, transport.DefaultRegistry.List())
		return exitValidation
	}

	store := retention.NewRunDirStore(f.dataDir)
	shardDir := store.TmpDir(cfg.RunID)
	if err := os.MkdirAll(shardDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFatalRuntime
	}
	shards := make([]*metrics.ShardWriter, 0, cfgpkg.DefaultShardCount)
	for i := 0; i < cfgpkg.DefaultShardCount; i++ {
		sw, err := metrics.NewShardWriter(filepath.Join(shardDir, fmt.Sprintf("shard-%d.log", i)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFatalRuntime
		}
		shards = append(shards, sw)
	}
	defer func() {
		for _, s := range shards {
			_ = s.Close()
		}
	}()

	started := time.Now()
	agg := metrics.NewAggregator(cfg.RunID, cfg.Retention, cfg.Warmup, started, shards)

	engine, err := loadgen.New(cfg, sc, adapter, agg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	aggDone := make(chan struct{})
	go func() {
		agg.Run(runCtx)
		close(aggDone)
	}()

	sinkRunner := buildSinks(f, agg)
	if sinkRunner != nil {
		go sinkRunner.Run(runCtx)
	}

	// The bucket series is only attached to a model after the aggregator
	// stops owning it; the live readout works from published frames alone.
	model := ui.NewModel(cfg.RunID, started, agg.Latest, 0).
		WithState(func() string { return engine.State().String() })
	if cfg.Profile != nil {
		model.WithRate(func() float64 {
			return cfg.Profile.RateAt(time.Since(started).Seconds())
		})
	}
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		renderProgress(runCtx, model)
	}()

	if err := engine.Run(runCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	agg.CloseInput()
	<-aggDone
	cancelRun()
	<-progressDone
	if sinkRunner != nil {
		sinkRunner.Flush()
	}
	store.RecordRunEnd(cfg.RunID, time.Now().UnixMilli())

	report := summary.Build(agg.Latest(), agg.Buckets())
	samples := agg.ChartSamples()
	if f.showSummary {
		summary.Render(os.Stdout, report, summary.StdoutIsTTY() && !f.noColor)
	}
	if code := writeExports(f, report, samples); code != exitOK {
		return code
	}
	return exitOK
}

// buildSinks wires any requested textfile sinks over the aggregator's
// latest frame. Returns nil when no sink flags were set.
func buildSinks(f *cliFlags, agg *metrics.Aggregator) *sinks.Runner {
	var list []sinks.Sink
	if f.promOut != "" {
		list = append(list, sinks.NewPrometheusTextfile(f.promOut))
	}
	if f.otelOut != "" {
		list = append(list, sinks.NewOTelJSON(f.otelOut))
	}
	if f.influxOut != "" {
		list = append(list, sinks.NewInfluxLine(f.influxOut))
	}
	if len(list) == 0 {
		return nil
	}
	return sinks.NewRunner(agg.Latest, f.sinkEvery, list...)
}

// renderProgress prints a one-line readout to stderr each second in
// non-TTY mode; a TUI frontend would poll the same model instead.
func renderProgress(ctx context.Context, model *ui.Model) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := model.Snapshot()
			fmt.Fprintf(os.Stderr, "[%s] %s reqs=%d ok=%d err=%d rate=%.1f/s p99=%s\n",
				snap.Elapsed.Round(time.Second), snap.State,
				snap.TotalRequests, snap.TotalOk, snap.TotalErrors,
				snap.RatePerSec, time.Duration(snap.P99Ns).Round(time.Millisecond))
		}
	}
}

// writeExports persists the requested export formats, mapping any failure
// to its exit code.
func writeExports(f *cliFlags, report *summary.Report, samples []types.RequestOutcome) int {
	if f.exportJSON != "" {
		if err := summary.ExportJSON(f.exportJSON, report); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFatalRuntime
		}
	}
	if f.exportJSONL != "" {
		if err := summary.ExportJSONL(f.exportJSONL, report, samples); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFatalRuntime
		}
	}
	if f.exportCSV != "" {
		if err := summary.ExportCSV(f.exportCSV, samples); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFatalRuntime
		}
	}
	return exitOK
}
