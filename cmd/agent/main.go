// Command agent is the distributed-mode load generator: it joins a
// controller, waits for its partitioned run configuration, drives the load
// engine locally, and streams summary frames back until the run finishes.
// Host metrics collected at join time travel in the handshake so the
// controller can see what kind of box each agent runs on.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Lythaeon/strest/internal/agent"
	cfgpkg "github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/coordinator"
	"github.com/Lythaeon/strest/internal/coordinator/wire"
	"github.com/Lythaeon/strest/internal/events"
	"github.com/Lythaeon/strest/internal/loadgen"
	"github.com/Lythaeon/strest/internal/metrics"
	"github.com/Lythaeon/strest/internal/retention"
	"github.com/Lythaeon/strest/internal/scenario"
	"github.com/Lythaeon/strest/internal/summary"
	"github.com/Lythaeon/strest/internal/transport"
)

func main() {
	join := flag.String("join", "", "Controller address to join (host:port)")
	token := flag.String("auth-token", "", "Shared bearer token for the controller handshake")
	agentID := flag.String("id", "", "Stable agent id (default: generated per process)")
	weight := flag.Float64("weight", 1, "Proportional share of the global target")
	standby := flag.Bool("standby", false, "Reconnect and wait for the next run after reporting")
	reconnect := flag.Duration("reconnect", time.Duration(cfgpkg.DefaultAgentReconnectMs)*time.Millisecond, "Reconnect period in standby mode")
	scenarioPath := flag.String("script", "", "Scenario file overriding the single-URL mode the controller dispatches")
	streamInterval := flag.Duration("stream-interval", time.Duration(cfgpkg.DefaultStreamIntervalMs)*time.Millisecond, "Summary frame streaming cadence")
	dataDir := flag.String("data-dir", retention.DefaultRoot(), "Directory for raw shard logs")
	flag.Parse()

	if *join == "" {
		fmt.Fprintln(os.Stderr, "Error: --join is required")
		os.Exit(1)
	}
	if *weight <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --weight must be positive")
		os.Exit(1)
	}

	id := *agentID
	if id == "" {
		id = "agent-" + uuid.NewString()[:8]
	}
	events.SetGlobalEventLogger(events.NewEventLogger(id))

	var sc *scenario.Scenario
	if *scenarioPath != "" {
		data, err := os.ReadFile(*scenarioPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: read scenario: %v\n", err)
			os.Exit(2)
		}
		sc, err = scenario.Load(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "shutting down agent")
		cancel()
	}()

	a := &agentProcess{
		id:             id,
		weight:         *weight,
		token:          *token,
		join:           *join,
		scenario:       sc,
		streamInterval: *streamInterval,
		store:          retention.NewRunDirStore(*dataDir),
	}

	attempt := 0
	for {
		err := a.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "controller session ended: %v\n", err)
		}
		if !*standby {
			if err != nil {
				os.Exit(4)
			}
			return
		}
		attempt++
		events.GetGlobalEventLogger().LogAgentReconnect(id, attempt, reconnect.Milliseconds())
		select {
		case <-ctx.Done():
			return
		case <-time.After(*reconnect):
		}
	}
}

// agentProcess holds the process-wide pieces a controller session needs.
type agentProcess struct {
	id             string
	weight         float64
	token          string
	join           string
	scenario       *scenario.Scenario
	streamInterval time.Duration
	store          *retention.RunDirStore
}

// session dials the controller once and serves run assignments until the
// connection drops or ctx is cancelled. Standby keeps the same agent id
// across sessions, so a reconnect resumes the same registry slot.
func (a *agentProcess) session(ctx context.Context) error {
	client := coordinator.NewAgentClient(a.id, a.weight, a.token)
	if err := client.Dial(ctx, a.join, collectHostInfo()); err != nil {
		return err
	}
	defer client.Close()

	fmt.Fprintf(os.Stderr, "joined controller %s as %s (weight %g)\n", a.join, a.id, a.weight)
	if rid := client.AckRunID(); rid != "" {
		fmt.Fprintf(os.Stderr, "rejoining run %s in progress\n", rid)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- client.Run(sessionCtx) }()

	for {
		select {
		case <-sessionCtx.Done():
			return nil
		case err := <-errCh:
			return err
		case rc := <-client.RunConfigs():
			if err := a.executeRun(sessionCtx, client, rc); err != nil {
				fmt.Fprintf(os.Stderr, "run %s failed: %v\n", rc.RunID, err)
			}
		}
	}
}

// executeRun drives one assigned run to completion, streaming summary
// frames on the way and reporting the final frame at the end.
func (a *agentProcess) executeRun(ctx context.Context, client *coordinator.AgentClient, rc wire.RunConfigFrame) error {
	cfg, err := cfgpkg.DecodeRunConfig(rc.Config)
	if err != nil {
		return err
	}
	cfg.RunID = rc.RunID

	sc := a.scenario
	if sc == nil {
		sc = scenario.SingleURL("GET", cfg.BaseURL)
	}

	adapterID := cfg.TransportKind
	if adapterID == "" {
		adapterID = "http"
	}
	adapter, ok := transport.DefaultRegistry.Get(adapterID)
	if !ok {
		return fmt.Errorf("unknown transport %q", adapterID)
	}

	shardDir := a.store.TmpDir(rc.RunID)
	if err := os.MkdirAll(shardDir, 0o755); err != nil {
		return err
	}
	shards := make([]*metrics.ShardWriter, 0, cfgpkg.DefaultShardCount)
	for i := 0; i < cfgpkg.DefaultShardCount; i++ {
		sw, err := metrics.NewShardWriter(filepath.Join(shardDir, fmt.Sprintf("shard-%d.log", i)))
		if err != nil {
			return err
		}
		shards = append(shards, sw)
	}
	defer func() {
		for _, s := range shards {
			_ = s.Close()
		}
	}()

	started := time.Now()
	agg := metrics.NewAggregator(rc.RunID, cfg.Retention, cfg.Warmup, started, shards)

	engine, err := loadgen.New(cfg, sc, adapter, agg)
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	aggDone := make(chan struct{})
	go func() {
		agg.Run(runCtx)
		close(aggDone)
	}()

	// The agent writes no local sinks; the controller owns the aggregated
	// view, fed by these frames when StreamSummaries is set.
	go func() {
		streamTicker := time.NewTicker(a.streamInterval)
		defer streamTicker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-aggDone:
				return
			case <-streamTicker.C:
				if cfg.StreamSummaries {
					if data := encodeFrame(agg.Latest()); data != nil {
						_ = client.SendSummary(rc.RunID, data)
					}
				}
			case stop := <-client.Stops():
				if stop.RunID == rc.RunID {
					cancelRun()
					return
				}
			}
		}
	}()

	engineErr := engine.Run(runCtx)
	agg.CloseInput()
	<-aggDone

	a.store.RecordRunEnd(rc.RunID, time.Now().UnixMilli())

	shardPaths := make([]string, 0, len(shards))
	for i := range shards {
		shardPaths = append(shardPaths, filepath.Join(shardDir, fmt.Sprintf("shard-%d.log", i)))
	}

	report := summary.Build(agg.Latest(), agg.Buckets())
	if data, err := json.Marshal(report); err == nil {
		_ = client.SendFinal(rc.RunID, data, shardPaths)
	}
	return engineErr
}

func encodeFrame(frame *metrics.SummaryFrame) []byte {
	if frame == nil {
		return nil
	}
	data, err := json.Marshal(summary.Build(frame, nil))
	if err != nil {
		return nil
	}
	return data
}

// collectHostInfo samples host facts once for the handshake. Collection
// failures leave fields absent rather than failing the join.
func collectHostInfo() map[string]string {
	hostname, _ := os.Hostname()
	info := map[string]string{
		"hostname": hostname,
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"cpus":     strconv.Itoa(runtime.NumCPU()),
	}
	for k, v := range hostMetricsInfo(collectHostMetrics()) {
		info[k] = v
	}
	return info
}

// collectHostMetrics gathers the host gauges reported to the controller.
func collectHostMetrics() *agent.HostMetrics {
	hm := &agent.HostMetrics{}

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		hm.CPUPercent = cpuPercent[0]
	}
	if memInfo, err := mem.VirtualMemory(); err == nil && memInfo != nil {
		hm.MemTotal = memInfo.Total
		hm.MemUsed = memInfo.Used
		hm.MemAvailable = memInfo.Available
	}
	if swapInfo, err := mem.SwapMemory(); err == nil && swapInfo != nil {
		hm.SwapUsed = swapInfo.Used
	}
	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		hm.LoadAvg1 = loadAvg.Load1
		hm.LoadAvg5 = loadAvg.Load5
		hm.LoadAvg15 = loadAvg.Load15
	}
	return hm
}

// hostMetricsInfo flattens the gauges into the handshake's string map.
func hostMetricsInfo(hm *agent.HostMetrics) map[string]string {
	out := make(map[string]string)
	if hm.MemTotal > 0 {
		out["mem_total"] = strconv.FormatUint(hm.MemTotal, 10)
		out["mem_available"] = strconv.FormatUint(hm.MemAvailable, 10)
	}
	if hm.CPUPercent > 0 {
		out["cpu_percent"] = strconv.FormatFloat(hm.CPUPercent, 'f', 1, 64)
	}
	if hm.LoadAvg1 > 0 {
		out["load_avg_1"] = strconv.FormatFloat(hm.LoadAvg1, 'f', 2, 64)
	}
	return out
}
