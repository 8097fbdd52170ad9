package loadgen

import (
	"context"
	"net/http"
	"time"

	cfgpkg "github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/otel"
	"github.com/Lythaeon/strest/internal/scenario"
	"github.com/Lythaeon/strest/internal/transport"
	"github.com/Lythaeon/strest/internal/types"
	sdktrace "go.opentelemetry.io/otel/trace"
)

// Executor runs one scenario iteration (all of its steps) for a single
// worker against a single transport connection.
type Executor struct {
	scenario     *scenario.Scenario
	conn         transport.Conn
	cfg          *cfgpkg.RunConfig
	inFlight     *InFlightLimiter
	shardCount   int
	runStart     time.Time
	latencyCorrect bool
	tracer       *otel.Tracer
	runID        string
	workerID     int
}

// NewExecutor builds an executor bound to conn for the lifetime of one
// worker.
func NewExecutor(sc *scenario.Scenario, conn transport.Conn, cfg *cfgpkg.RunConfig, inFlight *InFlightLimiter, shardCount int, runStart time.Time) *Executor {
	return &Executor{
		scenario:       sc,
		conn:           conn,
		cfg:            cfg,
		inFlight:       inFlight,
		shardCount:     shardCount,
		runStart:       runStart,
		latencyCorrect: cfg.LatencyCorrection,
		tracer:         otel.GetGlobalTracer(),
		runID:          cfg.RunID,
	}
}

// WithWorkerID records which worker owns this executor, used only for span
// attribution.
func (e *Executor) WithWorkerID(id int) *Executor {
	e.workerID = id
	return e
}

// RunIteration executes every step of the scenario once, emitting one
// RequestOutcome per step to emit. schedulingDelay is the coordinated-
// omission correction computed by the caller's permit acquisition; it is
// added to each step's measured latency when enabled. Steps do not abort
// the scenario on assertion failure or unexpected status; every step emits
// its own outcome.
func (e *Executor) RunIteration(ctx context.Context, w *Worker, schedulingDelay time.Duration, emit func(types.RequestOutcome)) {
	seq := w.Seq.Next()

	for i, step := range e.scenario.Steps {
		select {
		case <-ctx.Done():
			return
		default:
		}

		iterVars := scenario.NewVars(e.scenario.Vars, step.Vars, i, seq)
		e.runStep(ctx, w, i, step, iterVars, schedulingDelay, emit)

		if dt := step.ThinkTime(); dt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(dt):
			}
		}
	}
}

func (e *Executor) runStep(ctx context.Context, w *Worker, stepIndex int, step scenario.Step, vars scenario.Vars, schedulingDelay time.Duration, emit func(types.RequestOutcome)) {
	url := step.URL
	if url == "" {
		base := e.scenario.BaseURL
		if base == "" {
			base = e.cfg.BaseURL
		}
		url = base + step.Path
	}
	url = vars.Render(url)

	headers := make(map[string]string, len(e.scenario.Headers)+len(step.Headers))
	for k, v := range e.scenario.Headers {
		headers[k] = vars.Render(v)
	}
	for k, v := range step.Headers {
		headers[k] = vars.Render(v)
	}

	body := step.Data
	if len(body) == 0 {
		body = e.scenario.Data
	}
	var bodyBytes []byte
	if len(body) > 0 {
		bodyBytes = []byte(vars.Render(string(body)))
	}

	_ = e.inFlight.Acquire(ctx)
	inFlightAtStart := e.inFlight.Current()
	defer e.inFlight.Release()

	req := &transport.Request{
		Method:          step.EffectiveMethod(e.scenario.Method),
		URL:             url,
		Headers:         headers,
		Body:            bodyBytes,
		StepIndex:       stepIndex,
		InFlightAtStart: inFlightAtStart,
	}

	timeout := e.cfg.Timeouts.RequestTimeout.Duration()
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	spanCtx := attemptCtx
	var span sdktrace.Span
	if e.tracer != nil && e.tracer.Enabled() {
		spanCtx, span = e.tracer.StartAttemptSpan(attemptCtx, otel.AttemptSpanOptions{
			RunID:     e.runID,
			WorkerID:  e.workerID,
			StepIndex: stepIndex,
			Method:    req.Method,
			URL:       url,
		})
		carrier := headersCarrier(headers)
		otel.InjectHeaders(spanCtx, carrier, e.tracer)
		for k := range carrier {
			req.Headers[k] = carrier.Get(k)
		}
	}

	dispatchedAt := time.Now()
	resp, err := e.conn.Send(spanCtx, req)

	latency := time.Since(dispatchedAt)
	if e.latencyCorrect && schedulingDelay > 0 {
		latency += schedulingDelay
	}

	class := types.OutcomeOk
	status := 0
	var responseBytes int64
	if err != nil || resp == nil {
		class = types.OutcomeTransport
	} else {
		status = resp.Status
		responseBytes = resp.ResponseBytes
		switch {
		case resp.TimedOut:
			class = types.OutcomeTimeout
		case resp.Err != nil:
			class = types.OutcomeTransport
		case !e.cfg.ExpectedStatus.Accepts(resp.Status):
			class = types.OutcomeNotExpectedStatus
		case !scenario.AssertStatus(resp.Status, step.AssertStatus):
			class = types.OutcomeAssertionFailed
		case !scenario.AssertBodyContains(resp.Body, vars.Render(step.AssertBodyContains)):
			class = types.OutcomeAssertionFailed
		default:
			class = types.OutcomeOk
		}
	}

	var traceID, spanID string
	if span != nil {
		span.SetAttributes(otel.AttemptResultAttributes(status, class.String())...)
		if class != types.OutcomeOk {
			span.SetAttributes(otel.ErrorAttribute(true))
		}
		traceID, spanID = otel.GetTraceInfo(spanCtx)
		span.End()
	}

	m := otel.GetGlobalMetrics()
	m.RecordAttemptLatency(ctx, stepIndex, float64(latency.Microseconds())/1000.0, class.String())
	if class != types.OutcomeOk {
		m.RecordError(ctx, class.String())
	}

	outcome := types.RequestOutcome{
		TimestampUs:     dispatchedAt.Sub(e.runStart).Microseconds(),
		LatencyNs:       latency.Nanoseconds(),
		Status:          status,
		Class:           class,
		ResponseBytes:   responseBytes,
		TraceID:         traceID,
		SpanID:          spanID,
		InFlightAtStart: inFlightAtStart,
		StepIndex:       stepIndex,
		ShardID:         shardFor(w.ID, e.shardCount),
		WorkerID:        w.ID,
	}
	emit(outcome)
}

func shardFor(workerID, shardCount int) int {
	if shardCount <= 0 {
		return 0
	}
	return workerID % shardCount
}

// headersCarrier adapts the scenario step's plain string-map headers to the
// http.Header shape otel.InjectHeaders' propagation carrier needs.
func headersCarrier(h map[string]string) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out.Set(k, v)
	}
	return out
}
