package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	cfgpkg "github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/coordinator"
	"github.com/Lythaeon/strest/internal/coordinator/scheduler"
	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/events"
	"github.com/Lythaeon/strest/internal/scenario"
	"github.com/Lythaeon/strest/internal/summary"
)

// runController orchestrates a distributed run: accept agents, partition
// the load, dispatch, aggregate what comes back. The controller never
// generates load itself.
func runController(ctx context.Context, f *cliFlags) int {
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
	cfg.StreamSummaries = f.streamSummaries
	events.SetGlobalEventLogger(events.NewEventLogger(cfg.RunID))

	ctrl := coordinator.NewController("controller-"+uuid.NewString()[:8], f.authToken)
	if err := ctrl.Start(ctx, f.controllerListen); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitDistributed
	}
	defer ctrl.Close()
	fmt.Fprintf(os.Stderr, "controller listening on %s (%s mode)\n", f.controllerListen, f.controllerMode)

	switch f.controllerMode {
	case "manual":
		return runManualController(ctx, f, ctrl, cfg)
	case "auto":
		return runAutoController(ctx, f, ctrl, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown controller mode %q\n", f.controllerMode)
		return exitUsage
	}
}

func runAutoController(ctx context.Context, f *cliFlags, ctrl *coordinator.Controller, cfg *cfgpkg.RunConfig) int {
	if err := ctrl.WaitForAgents(ctx, f.minAgents, f.agentWait); err != nil {
		// The wait timeout still starts the run if anyone at all joined.
		if ctrl.Registry.CountInState(scheduler.StateReady) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no agents joined within %s\n", f.agentWait)
			return exitDistributed
		}
	}
	if code := dispatchRun(f, ctrl, cfg); code != exitOK {
		return code
	}
	return awaitRun(ctx, f, ctrl, cfg)
}

// startRequest is the manual control plane's POST /start body.
type startRequest struct {
	ScenarioName       string          `json:"scenario_name,omitempty"`
	Scenario           json.RawMessage `json:"scenario,omitempty"`
	StartAfterMs       int64           `json:"start_after_ms,omitempty"`
	AgentWaitTimeoutMs int64           `json:"agent_wait_timeout_ms,omitempty"`
}

func runManualController(ctx context.Context, f *cliFlags, ctrl *coordinator.Controller, cfg *cfgpkg.RunConfig) int {
	if f.controlListen == "" {
		fmt.Fprintln(os.Stderr, "Error: --control-listen is required in manual mode")
		return exitUsage
	}
	cp := coordinator.NewControlPlane(ctrl, f.controlAuthToken)

	// Named scenarios stored across /start calls: a name plus an inline
	// scenario stores it, a name alone looks up a stored one. The resolved
	// scenario is only validated; the dispatched run is always built from
	// cfg and does not carry the scenario from the request.
	stored := make(map[string]json.RawMessage)

	runDone := make(chan int, 1)
	cp.OnStart(func(reqCtx context.Context, body []byte) (string, error) {
		var req startRequest
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return "", errs.New("controller.start", errs.ConfigValidation, "", err)
			}
		}

		inline := req.Scenario
		if req.ScenarioName != "" && len(inline) > 0 {
			stored[req.ScenarioName] = inline
		} else if req.ScenarioName != "" {
			var ok bool
			inline, ok = stored[req.ScenarioName]
			if !ok {
				return "", errs.New("controller.start", errs.ConfigValidation, req.ScenarioName,
					fmt.Errorf("no stored scenario named %q", req.ScenarioName))
			}
		}
		if len(inline) > 0 {
			if _, err := scenario.Load(inline); err != nil {
				return "", err
			}
		}

		wait := f.agentWait
		if req.AgentWaitTimeoutMs > 0 {
			wait = time.Duration(req.AgentWaitTimeoutMs) * time.Millisecond
		}
		if err := ctrl.WaitForAgents(reqCtx, f.minAgents, wait); err != nil {
			if ctrl.Registry.CountInState(scheduler.StateReady) == 0 {
				return "", err
			}
		}
		if req.StartAfterMs > 0 {
			time.Sleep(time.Duration(req.StartAfterMs) * time.Millisecond)
		}

		if code := dispatchRun(f, ctrl, cfg); code != exitOK {
			return "", errs.New("controller.start", errs.DistributedProtocol, cfg.RunID,
				fmt.Errorf("dispatch failed"))
		}
		go func() { runDone <- awaitRun(ctx, f, ctrl, cfg) }()
		return cfg.RunID, nil
	})
	cp.OnStop(func(runID, reason string) error {
		return nil // broadcast handled by the control plane itself
	})

	if err := cp.Start(f.controlListen); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitDistributed
	}
	defer cp.Close()
	fmt.Fprintf(os.Stderr, "control plane on %s\n", f.controlListen)

	select {
	case <-ctx.Done():
		return exitOK
	case code := <-runDone:
		return code
	}
}

// dispatchRun partitions cfg across the Ready agents and sends each its
// slice.
func dispatchRun(f *cliFlags, ctrl *coordinator.Controller, cfg *cfgpkg.RunConfig) int {
	var agents []scheduler.WeightedAgent
	for _, rec := range ctrl.Registry.List() {
		if rec.ConnectionState != scheduler.StateReady {
			continue
		}
		agents = append(agents, scheduler.WeightedAgent{ID: rec.ID, Weight: rec.Weight})
	}
	if len(agents) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no ready agents to dispatch to")
		return exitDistributed
	}

	slices, err := scheduler.PartitionRunConfig(cfg, agents)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitDistributed
	}

	perAgent := make(map[string]json.RawMessage, len(slices))
	for id, slice := range slices {
		data, err := cfgpkg.EncodeRunConfig(slice)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitDistributed
		}
		perAgent[id] = data
	}
	ctrl.DispatchRunConfig(cfg.RunID, perAgent)
	fmt.Fprintf(os.Stderr, "dispatched run %s to %d agents\n", cfg.RunID, len(agents))
	return exitOK
}

// awaitRun consumes streamed frames and final reports until every
// dispatched agent reports (or is lost), then prints and exports the
// merged summary.
func awaitRun(ctx context.Context, f *cliFlags, ctrl *coordinator.Controller, cfg *cfgpkg.RunConfig) int {
	running := ctrl.Registry.CountInState(scheduler.StateRunning)
	finals := make(map[string]*summary.Report, running)

	progress := time.NewTicker(time.Second)
	defer progress.Stop()

	for len(finals) < running {
		select {
		case <-ctx.Done():
			ctrl.Stop(cfg.RunID, "controller shutdown")
			return exitOK
		case rep := <-ctrl.Finals():
			if r, err := coordinator.DecodeReport(rep.Frame); err == nil {
				finals[rep.AgentID] = r
			}
		case <-progress.C:
			if f.streamSummaries {
				if merged, err := coordinator.MergeReports(cfg.RunID, ctrl.LatestReports()); err == nil {
					fmt.Fprintf(os.Stderr, "[agg] reqs=%d err=%d rate=%.1f/s\n",
						merged.TotalRequests, merged.TotalErrors, merged.RatePerSec)
				}
			}
			// Lost agents shrink the barrier so one dead box cannot hang
			// the controller forever.
			alive := 0
			for _, rec := range ctrl.Registry.List() {
				if rec.ConnectionState == scheduler.StateRunning ||
					(rec.ConnectionState == scheduler.StateReporting && finals[rec.ID] == nil) {
					alive++
				}
			}
			if alive == 0 && len(finals) > 0 {
				running = len(finals)
			}
		}
	}

	ctrl.FinishRun(cfg.RunID)

	reports := make([]*summary.Report, 0, len(finals))
	for _, r := range finals {
		reports = append(reports, r)
	}
	merged, err := coordinator.MergeReports(cfg.RunID, reports)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFatalRuntime
	}

	if f.showSummary {
		summary.Render(os.Stdout, merged, summary.StdoutIsTTY() && !f.noColor)
	}
	if f.exportJSON != "" {
		if err := summary.ExportJSON(f.exportJSON, merged); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFatalRuntime
		}
	}
	return exitOK
}
