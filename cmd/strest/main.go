// Command strest is the load-generator CLI. One binary covers the three
// ways a run happens: standalone load generation against a target URL,
// controller mode orchestrating remote agents, and replay mode rebuilding
// summaries from persisted logs without generating traffic.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	cfgpkg "github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/events"
	"github.com/Lythaeon/strest/internal/retention"
	"github.com/Lythaeon/strest/internal/scenario"
)

// Exit codes.
const (
	exitOK           = 0
	exitUsage        = 1
	exitValidation   = 2
	exitFatalRuntime = 3
	exitDistributed  = 4
)

type cliFlags struct {
	url      string
	script   string
	protocol string

	rate     float64
	rpm      float64
	maxTasks int
	duration time.Duration
	requests int64
	warmup   time.Duration
	stages   stageList

	noWaitOngoing bool
	drainWindow   time.Duration
	reqTimeout    time.Duration
	connTimeout   time.Duration
	metricsMax    int

	showSummary bool
	noColor     bool
	exportJSON  string
	exportJSONL string
	exportCSV   string
	promOut     string
	otelOut     string
	influxOut   string
	sinkEvery   time.Duration

	controllerListen string
	controllerMode   string
	controlListen    string
	authToken        string
	controlAuthToken string
	minAgents        int
	agentWait        time.Duration
	streamSummaries  bool

	replayPath     string
	replayFormat   string
	replayStart    string
	replayEnd      string
	snapshotEvery  time.Duration
	snapshotOut    string
	snapshotFormat string

	cleanup bool
	dataDir string
}

// stageList parses repeated --stage flags: "10s:500" (rate),
// "10s:3000rpm", or "10s:64c" (closed-loop concurrency).
type stageList []cfgpkg.Stage

func (s *stageList) String() string { return fmt.Sprintf("%d stages", len(*s)) }

func (s *stageList) Set(v string) error {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("stage %q: want duration:target", v)
	}
	d, err := time.ParseDuration(parts[0])
	if err != nil {
		return fmt.Errorf("stage %q: %w", v, err)
	}
	dur, err := cfgpkg.NewPositiveDuration("stage.duration", d)
	if err != nil {
		return err
	}

	var target cfgpkg.StageTarget
	raw := parts[1]
	switch {
	case strings.HasSuffix(raw, "rpm"):
		var rpm float64
		if _, err := fmt.Sscanf(strings.TrimSuffix(raw, "rpm"), "%g", &rpm); err != nil {
			return fmt.Errorf("stage %q: %w", v, err)
		}
		target = cfgpkg.RPM(rpm)
	case strings.HasSuffix(raw, "c"):
		var n int
		if _, err := fmt.Sscanf(strings.TrimSuffix(raw, "c"), "%d", &n); err != nil {
			return fmt.Errorf("stage %q: %w", v, err)
		}
		target = cfgpkg.Concurrency(n)
	default:
		var rate float64
		if _, err := fmt.Sscanf(raw, "%g", &rate); err != nil {
			return fmt.Errorf("stage %q: %w", v, err)
		}
		target = cfgpkg.Rate(rate)
	}

	stage, err := cfgpkg.NewStage(dur, target)
	if err != nil {
		return err
	}
	*s = append(*s, stage)
	return nil
}

func parseFlags(args []string) (*cliFlags, error) {
	f := &cliFlags{}
	fs := flag.NewFlagSet("strest", flag.ContinueOnError)

	fs.StringVar(&f.url, "url", "", "Target URL")
	fs.StringVar(&f.url, "u", "", "Target URL (shorthand)")
	fs.StringVar(&f.script, "script", "", "Scenario file (JSON or YAML)")
	fs.StringVar(&f.protocol, "protocol", "http", "Transport adapter")

	fs.Float64Var(&f.rate, "rate", 0, "Target requests/sec (open loop)")
	fs.Float64Var(&f.rate, "q", 0, "Target requests/sec (shorthand)")
	fs.Float64Var(&f.rpm, "rpm", 0, "Target requests/min (mutually exclusive with --rate)")
	fs.IntVar(&f.maxTasks, "max-tasks", 64, "Concurrency cap")
	fs.IntVar(&f.maxTasks, "m", 64, "Concurrency cap (shorthand)")
	fs.DurationVar(&f.duration, "duration", 0, "Run deadline (0 = until --requests or interrupt)")
	fs.DurationVar(&f.duration, "t", 0, "Run deadline (shorthand)")
	fs.Int64Var(&f.requests, "requests", 0, "Total request cap (0 = unbounded)")
	fs.Int64Var(&f.requests, "n", 0, "Total request cap (shorthand)")
	fs.DurationVar(&f.warmup, "warmup", 0, "Warmup excluded from summary and charts")
	fs.Var(&f.stages, "stage", "Load stage duration:target, repeatable (500, 3000rpm, or 64c)")

	fs.BoolVar(&f.noWaitOngoing, "no-wait-ongoing", false, "Cancel in-flight requests at the deadline")
	fs.DurationVar(&f.drainWindow, "drain-window", 5*time.Second, "How long to wait for in-flight requests after the deadline")
	fs.DurationVar(&f.reqTimeout, "timeout", 30*time.Second, "Per-request timeout")
	fs.DurationVar(&f.connTimeout, "connect-timeout", 10*time.Second, "Connect timeout")
	fs.IntVar(&f.metricsMax, "metrics-max", 0, "Cap on retained chart-visible outcomes (0 = default)")

	fs.BoolVar(&f.showSummary, "summary", true, "Print the end-of-run summary to stdout")
	fs.BoolVar(&f.noColor, "no-color", false, "Disable colored summary output")
	fs.StringVar(&f.exportJSON, "export-json", "", "Write the summary document to this path")
	fs.StringVar(&f.exportJSONL, "export-jsonl", "", "Write the outcome line stream to this path")
	fs.StringVar(&f.exportCSV, "export-csv", "", "Write outcome CSV rows to this path")
	fs.StringVar(&f.promOut, "prom-out", "", "Prometheus textfile sink path")
	fs.StringVar(&f.otelOut, "otel-out", "", "OpenTelemetry JSON sink path")
	fs.StringVar(&f.influxOut, "influx-out", "", "Influx line protocol sink path")
	fs.DurationVar(&f.sinkEvery, "sink-interval", time.Duration(cfgpkg.DefaultSinkIntervalMs)*time.Millisecond, "Sink write cadence")

	fs.StringVar(&f.controllerListen, "controller-listen", "", "Run as controller, accepting agents on this address")
	fs.StringVar(&f.controllerMode, "controller-mode", "auto", "Controller start policy: auto or manual")
	fs.StringVar(&f.controlListen, "control-listen", "", "Manual-mode HTTP control plane address")
	fs.StringVar(&f.authToken, "auth-token", "", "Shared bearer token agents must present")
	fs.StringVar(&f.controlAuthToken, "control-auth-token", "", "Bearer token for the HTTP control plane")
	fs.IntVar(&f.minAgents, "min-agents", 1, "Agents required before an auto-mode run starts")
	fs.DurationVar(&f.agentWait, "agent-wait-timeout", time.Duration(cfgpkg.DefaultAgentWaitTimeoutMs)*time.Millisecond, "How long to wait for --min-agents")
	fs.BoolVar(&f.streamSummaries, "stream-summaries", false, "Agents stream summary frames; controller aggregates live")

	fs.StringVar(&f.replayPath, "replay", "", "Replay persisted logs at this path instead of generating traffic")
	fs.StringVar(&f.replayFormat, "replay-format", "", "Replay input format: raw, jsonl, csv, json (default: detected)")
	fs.StringVar(&f.replayStart, "replay-start", "min", "Replay window start: min or a duration offset")
	fs.StringVar(&f.replayEnd, "replay-end", "max", "Replay window end: max or a duration offset")
	fs.DurationVar(&f.snapshotEvery, "replay-snapshot-interval", 0, "Freeze a snapshot every interval of replayed time")
	fs.StringVar(&f.snapshotOut, "replay-snapshot-out", "", "Directory for replay snapshots")
	fs.StringVar(&f.snapshotFormat, "replay-snapshot-format", "json", "Snapshot format: json, jsonl, csv")

	fs.BoolVar(&f.cleanup, "cleanup", false, "Sweep expired run folders and exit")
	fs.StringVar(&f.dataDir, "data-dir", retention.DefaultRoot(), "strest home directory")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		return exitUsage
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "interrupted, draining")
		cancel()
	}()

	switch {
	case f.cleanup:
		return runCleanup(f)
	case f.replayPath != "":
		return runReplay(f)
	case f.controllerListen != "":
		return runController(ctx, f)
	default:
		return runStandalone(ctx, f)
	}
}

// loadScenario resolves the run's scenario: an explicit script file, or
// single-URL mode.
func loadScenario(f *cliFlags) (*scenario.Scenario, error) {
	if f.script != "" {
		data, err := os.ReadFile(f.script)
		if err != nil {
			return nil, errs.New("strest.loadScenario", errs.Script, f.script, err)
		}
		return scenario.Load(data)
	}
	if f.url == "" {
		return nil, errs.New("strest.loadScenario", errs.ConfigValidation, "",
			fmt.Errorf("either --url or --script is required"))
	}
	return scenario.SingleURL("GET", f.url), nil
}

// buildRunConfig assembles the effective RunConfig from flags, applying the
// usual validation rules before any traffic moves.
func buildRunConfig(f *cliFlags, sc *scenario.Scenario) (*cfgpkg.RunConfig, error) {
	if f.rate > 0 && f.rpm > 0 {
		return nil, errs.New("strest.buildRunConfig", errs.ConfigValidation, "",
			fmt.Errorf("--rate and --rpm are mutually exclusive"))
	}

	baseURL := f.url
	if baseURL == "" && sc != nil {
		baseURL = sc.BaseURL
	}
	if baseURL == "" && sc != nil && len(sc.Steps) > 0 {
		baseURL = sc.Steps[0].URL
	}

	maxTasks, err := cfgpkg.NewPositiveInt("max_tasks", f.maxTasks)
	if err != nil {
		return nil, err
	}
	reqTimeout, err := cfgpkg.NewPositiveDuration("request_timeout", f.reqTimeout)
	if err != nil {
		return nil, err
	}
	connTimeout, err := cfgpkg.NewPositiveDuration("connect_timeout", f.connTimeout)
	if err != nil {
		return nil, err
	}

	initialRate := f.rate
	if f.rpm > 0 {
		initialRate = f.rpm / 60
	}
	var profile *cfgpkg.LoadProfile
	if initialRate > 0 || len(f.stages) > 0 {
		profile = cfgpkg.NewLoadProfile(initialRate, f.stages)
	}

	retentionCfg := cfgpkg.DefaultRetentionConfig()
	if f.metricsMax > 0 {
		retentionCfg.MetricsMax = f.metricsMax
	}

	cfg := &cfgpkg.RunConfig{
		RunID:         newRunID(baseURL),
		BaseURL:       baseURL,
		Profile:       profile,
		MaxTasks:      maxTasks,
		SpawnRamp:     cfgpkg.DefaultSpawnRamp(),
		Timeouts:      cfgpkg.TimeoutConfig{RequestTimeout: reqTimeout, ConnectTimeout: connTimeout},
		Warmup:        f.warmup,
		Deadline:      f.duration,
		DrainWindow:   f.drainWindow,
		WaitOngoing:   !f.noWaitOngoing,
		TransportKind: f.protocol,
		Retention:     retentionCfg,
	}
	if f.requests > 0 {
		limit := f.requests
		cfg.TotalRequestCap = &limit
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRunID names the run folder: run-YYYY-MM-DD_HH-MM-SS_<HOST-PORT>, with
// a short unique suffix to survive two runs inside the same second.
func newRunID(baseURL string) string {
	hostPort := "local"
	if baseURL != "" {
		trimmed := baseURL
		if i := strings.Index(trimmed, "://"); i >= 0 {
			trimmed = trimmed[i+3:]
		}
		if i := strings.IndexAny(trimmed, "/?"); i >= 0 {
			trimmed = trimmed[:i]
		}
		hostPort = strings.ReplaceAll(trimmed, ":", "-")
	}
	return fmt.Sprintf("run-%s_%s-%s",
		time.Now().Format("2006-01-02_15-04-05"), hostPort, uuid.NewString()[:4])
}

func runCleanup(f *cliFlags) int {
	events.SetGlobalEventLogger(events.NewEventLogger("cleanup"))
	store := retention.NewRunDirStore(f.dataDir)
	m := retention.NewManager(retention.DefaultConfig(), store, store)
	m.SweepNow()
	return exitOK
}

// exitCodeFor maps the error taxonomy onto process exit codes.
func exitCodeFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ConfigValidation, errs.Script, errs.TransportSetup:
		return exitValidation
	case errs.DistributedHandshake, errs.DistributedProtocol, errs.Auth:
		return exitDistributed
	default:
		return exitFatalRuntime
	}
}
