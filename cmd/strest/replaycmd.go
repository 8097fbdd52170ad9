package main

import (
	"fmt"
	"os"

	cfgpkg "github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/replay"
	"github.com/Lythaeon/strest/internal/summary"
)

// runReplay reconstructs a run from persisted logs: same aggregation, no
// traffic.
func runReplay(f *cliFlags) int {
	start, err := replay.ParseBound(f.replayStart)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitValidation
	}
	end, err := replay.ParseBound(f.replayEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitValidation
	}

	retentionCfg := cfgpkg.DefaultRetentionConfig()
	if f.metricsMax > 0 {
		retentionCfg.MetricsMax = f.metricsMax
	}

	opts := replay.Options{
		Window:    replay.Window{Start: start, End: end},
		Warmup:    f.warmup,
		Retention: retentionCfg,
	}

	var snapWriter *replay.SnapshotWriter
	if f.snapshotEvery > 0 && f.snapshotOut != "" {
		snapWriter = &replay.SnapshotWriter{
			Dir:    f.snapshotOut,
			Format: replay.Format(f.snapshotFormat),
		}
		opts.SnapshotInterval = f.snapshotEvery
	}

	res, err := runReplayPass(f, opts, snapWriter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}

	if f.showSummary {
		summary.Render(os.Stdout, res.Report, summary.StdoutIsTTY() && !f.noColor)
	}
	if code := writeExports(f, res.Report, res.Samples); code != exitOK {
		return code
	}
	return exitOK
}

// runReplayPass wires the snapshot callback (which needs the result's
// sample set, produced during the same pass) and runs the replay.
func runReplayPass(f *cliFlags, opts replay.Options, snapWriter *replay.SnapshotWriter) (*replay.Result, error) {
	var snapErr error
	if snapWriter != nil {
		opts.OnSnapshot = func(s replay.Snapshot) {
			if err := snapWriter.Write(s, nil); err != nil && snapErr == nil {
				snapErr = err
			}
		}
	}
	res, err := replay.RunFromPath(f.replayPath, replay.Format(f.replayFormat), opts)
	if err != nil {
		return nil, err
	}
	if snapErr != nil {
		fmt.Fprintf(os.Stderr, "warning: snapshot write failed: %v\n", snapErr)
	}
	return res, nil
}
