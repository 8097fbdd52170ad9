package loadgen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	cfgpkg "github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/events"
	"github.com/Lythaeon/strest/internal/otel"
	"github.com/Lythaeon/strest/internal/scenario"
	"github.com/Lythaeon/strest/internal/transport"
	"github.com/Lythaeon/strest/internal/types"
)

// OutcomeSink receives every completed attempt. Implementations own the
// durable paths (histograms, raw shard log) and must update them before
// returning; Offer's result only reports whether the chart-bound aggregate
// was enqueued, so a false return means sampled, not lost.
type OutcomeSink interface {
	Offer(o types.RequestOutcome) bool
}

// Engine drives a worker pool against a scenario according to a RunConfig's
// load profile, spawn ramp, and deadline.
type Engine struct {
	cfg      *cfgpkg.RunConfig
	scenario *scenario.Scenario
	adapter  transport.Adapter
	sink     OutcomeSink

	limiter  *RateLimiter
	inFlight *InFlightLimiter
	clock    *ProfileClock

	state   atomic.Int32
	workers sync.WaitGroup
	mu      sync.Mutex
	started time.Time

	dispatched atomic.Int64
}

// New validates cfg and builds an Engine; returns a fatal TransportSetup/
// ConfigValidation error if construction cannot proceed. Unrecoverable
// setup failure aborts before any dispatch.
func New(cfg *cfgpkg.RunConfig, sc *scenario.Scenario, adapter transport.Adapter, sink OutcomeSink) (*Engine, error) {
	if cfg == nil {
		return nil, errs.New("loadgen.New", errs.ConfigValidation, "", errInvalid("nil RunConfig"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sc == nil || len(sc.Steps) == 0 {
		return nil, errs.New("loadgen.New", errs.Script, "", errInvalid("scenario has no steps"))
	}
	if adapter == nil {
		return nil, errs.New("loadgen.New", errs.TransportSetup, "", errInvalid("nil transport adapter"))
	}
	if sink == nil {
		return nil, errs.New("loadgen.New", errs.ConfigValidation, "", errInvalid("nil outcome sink"))
	}
	mode := transport.LoadModeConcurrency
	if cfg.Profile != nil && len(cfg.Profile.Stages) > 0 {
		mode = transport.LoadModeRamp
	}
	if !adapter.AcceptsLoadMode(mode) {
		return nil, errs.New("loadgen.New", errs.ConfigValidation, adapter.ID(), errInvalid("adapter does not accept this load mode"))
	}

	initialRate := 0.0
	if cfg.Profile != nil {
		initialRate = cfg.Profile.RateAt(0)
	}
	burst := initialRate * 2
	if burst <= 0 {
		burst = 10000
	}

	e := &Engine{
		cfg:      cfg,
		scenario: sc,
		adapter:  adapter,
		sink:     sink,
		limiter:  NewRateLimiter(initialRate, burst),
		inFlight: NewInFlightLimiter(1 << 20),
	}
	e.state.Store(int32(StateInitializing))
	return e, nil
}

// State reports the engine's current lifecycle phase.
func (e *Engine) State() RunState { return RunState(e.state.Load()) }

// setState transitions the lifecycle and logs the change.
func (e *Engine) setState(next RunState) {
	prev := RunState(e.state.Swap(int32(next)))
	if prev != next {
		events.GetGlobalEventLogger().LogRunStateChange(prev.String(), next.String())
	}
}

// Dispatched returns the count of scenario iterations started so far, used
// to enforce TotalRequestCap.
func (e *Engine) Dispatched() int64 { return e.dispatched.Load() }

// Run executes the full lifecycle (Initializing -> Warmup -> Running ->
// Draining -> Finalized) until ctx is cancelled, the deadline elapses, or
// TotalRequestCap is reached, then blocks for up to DrainWindow for
// in-flight attempts before returning.
func (e *Engine) Run(ctx context.Context) error {
	e.started = time.Now()
	e.setState(StateWarmup)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if e.cfg.Deadline > 0 {
		go func() {
			select {
			case <-time.After(e.cfg.Deadline):
				e.setState(StateDraining)
				cancel()
			case <-runCtx.Done():
			}
		}()
	}
	if e.cfg.Warmup > 0 {
		go func() {
			select {
			case <-time.After(e.cfg.Warmup):
				if e.State() == StateWarmup {
					e.setState(StateRunning)
				}
			case <-runCtx.Done():
			}
		}()
	} else {
		e.setState(StateRunning)
	}

	if e.cfg.Profile != nil {
		e.clock = NewProfileClock(e.cfg.Profile, e.limiter, e.started)
		go e.clock.Run(runCtx)
	}

	conns := make([]transport.Conn, 0, e.cfg.MaxTasks.Int())
	var connsMu sync.Mutex

	spawn := func(id int) {
		conn, err := e.adapter.Connect(ctx, e.transportConfig())
		if err != nil {
			return
		}
		connsMu.Lock()
		conns = append(conns, conn)
		connsMu.Unlock()

		w := NewWorker(id, e.started.UnixNano()+int64(id))
		exec := NewExecutor(e.scenario, conn, e.cfg, e.inFlight, cfgpkg.DefaultShardCount, e.started).WithWorkerID(id)

		e.workers.Add(1)
		go func() {
			defer e.workers.Done()
			e.workerLoop(runCtx, w, exec)
		}()
	}

	ramp := e.cfg.SpawnRamp
	if ramp.Rate <= 0 {
		ramp = cfgpkg.DefaultSpawnRamp()
	}
	maxWorkers := e.cfg.MaxTasks.Int()
	spawned := 0
	ticker := time.NewTicker(time.Duration(ramp.IntervalMs) * time.Millisecond)
	defer ticker.Stop()
spawnLoop:
	for spawned < maxWorkers {
		for i := 0; i < ramp.Rate && spawned < maxWorkers; i++ {
			spawn(spawned)
			spawned++
		}
		if spawned >= maxWorkers {
			break
		}
		select {
		case <-runCtx.Done():
			break spawnLoop
		case <-ticker.C:
		}
	}

	// Workers return on their own once TotalRequestCap is reached, so stop
	// waiting then as well as on deadline or cancellation.
	workersDone := make(chan struct{})
	go func() {
		e.workers.Wait()
		close(workersDone)
	}()
	select {
	case <-runCtx.Done():
	case <-workersDone:
	}
	e.mu.Lock()
	if e.State() != StateFinalized {
		e.setState(StateDraining)
	}
	e.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		e.workers.Wait()
		close(drained)
	}()

	if e.cfg.WaitOngoing {
		select {
		case <-drained:
		case <-time.After(e.cfg.DrainWindow):
		}
	}

	for _, c := range conns {
		_ = c.Close()
	}

	e.setState(StateFinalized)
	return nil
}

func (e *Engine) workerLoop(ctx context.Context, w *Worker, exec *Executor) {
	w.SetState(StateRunning)
	m := otel.GetGlobalMetrics()
	m.IncrementWorkers(ctx)
	defer func() {
		m.DecrementWorkers(ctx)
		w.SetState(StateFinalized)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if cap := e.cfg.TotalRequestCap; cap != nil && e.dispatched.Load() >= *cap {
			return
		}

		delay, err := e.limiter.Acquire(ctx)
		if err != nil {
			return
		}
		e.dispatched.Add(1)

		exec.RunIteration(ctx, w, delay, func(o types.RequestOutcome) {
			// The sink records histograms and the shard log synchronously;
			// a false return means only the chart-bound copy was sampled
			// away under backpressure.
			if !e.sink.Offer(o) {
				m.RecordBackpressureDrop(ctx)
			}
		})
	}
}

func (e *Engine) transportConfig() *transport.Config {
	return &transport.Config{
		Endpoint: e.cfg.BaseURL,
		Timeouts: transport.TimeoutConfig{
			ConnectTimeout: e.cfg.Timeouts.ConnectTimeout.Duration(),
			RequestTimeout: e.cfg.Timeouts.RequestTimeout.Duration(),
		},
	}
}

type invalidErr string

func (e invalidErr) Error() string { return string(e) }
func errInvalid(msg string) error  { return invalidErr(msg) }
