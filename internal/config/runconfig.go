package config

import "time"

// ExpectedStatusPolicy decides whether a response status counts as Ok.
// Zero value (no ranges, no codes) accepts any 2xx status.
type ExpectedStatusPolicy struct {
	Codes  []int   // exact status codes accepted
	Ranges [][2]int // inclusive [min,max] ranges accepted
}

// Accepts reports whether status satisfies this policy.
func (p ExpectedStatusPolicy) Accepts(status int) bool {
	if len(p.Codes) == 0 && len(p.Ranges) == 0 {
		return status >= 200 && status < 300
	}
	for _, c := range p.Codes {
		if c == status {
			return true
		}
	}
	for _, r := range p.Ranges {
		if status >= r[0] && status <= r[1] {
			return true
		}
	}
	return false
}

// SpawnRamp bounds how fast new workers are spawned: rate new workers per
// interval, rather than an instantaneous jump to the concurrency cap.
type SpawnRamp struct {
	Rate       int
	IntervalMs int64
}

// DefaultSpawnRamp is the default thundering-herd guard.
func DefaultSpawnRamp() SpawnRamp {
	return SpawnRamp{Rate: 10, IntervalMs: 100}
}

// TimeoutConfig carries the per-attempt timeouts an adapter must honor.
type TimeoutConfig struct {
	RequestTimeout PositiveDuration
	ConnectTimeout PositiveDuration
}

// DefaultTimeoutConfig mirrors common HTTP client defaults.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		RequestTimeout: MustPositiveDuration("request_timeout", 30*time.Second),
		ConnectTimeout: MustPositiveDuration("connect_timeout", 10*time.Second),
	}
}

// RetentionConfig bounds in-memory outcome retention.
type RetentionConfig struct {
	MetricsMax   int // cap on retained chart-visible outcomes across shards
	RangeStart   *time.Duration
	RangeEnd     *time.Duration
}

// DefaultRetentionConfig caps chart retention at one million outcomes.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{MetricsMax: 1_000_000}
}

// RunConfig is the effective, immutable configuration for a single run
//. It is assembled by an external config/CLI loader (out of
// scope here) and validated once before any traffic is dispatched.
type RunConfig struct {
	RunID string

	BaseURL string

	Profile *LoadProfile

	MaxTasks  PositiveInt
	SpawnRamp SpawnRamp

	Timeouts TimeoutConfig

	Warmup          time.Duration
	Deadline        time.Duration // 0 = unbounded (rely on TotalRequestCap / external cancel)
	DrainWindow     time.Duration
	WaitOngoing     bool
	TotalRequestCap *int64

	ExpectedStatus ExpectedStatusPolicy

	TransportKind string // "http", "tcp", "udp", "websocket", "grpc-unary", ...

	LatencyCorrection bool

	Retention RetentionConfig

	// StreamSummaries, when true (agent mode), makes the agent send its
	// latest SummaryFrame to the controller on every stream tick.
	StreamSummaries bool
}

// Validate performs the load-time checks that must be fatal before any
// traffic is issued (ConfigValidation errors never produce outcomes).
func (c *RunConfig) Validate() error {
	if c.BaseURL == "" {
		return invalidConfig("base_url", "must be set")
	}
	if c.MaxTasks.Int() <= 0 {
		return invalidConfig("max_tasks", "must be positive")
	}
	return nil
}
