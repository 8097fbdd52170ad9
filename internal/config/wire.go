package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lythaeon/strest/internal/errs"
)

// RunConfigJSON is the wire/replay-safe mirror of RunConfig. RunConfig's
// constrained wrapper types (PositiveInt, PositiveDuration, the Stage
// tagged variant) are not directly JSON-(un)marshalable, so every boundary
// that needs to move a RunConfig over the wire or into a file goes through
// EncodeRunConfig/DecodeRunConfig instead of relying on encoding/json's
// struct tags.
type RunConfigJSON struct {
	RunID   string  `json:"run_id"`
	BaseURL string  `json:"base_url"`
	Profile *stageProfileJSON `json:"profile,omitempty"`

	MaxTasks     int   `json:"max_tasks"`
	SpawnRate    int   `json:"spawn_rate"`
	SpawnInterval int64 `json:"spawn_interval_ms"`

	RequestTimeoutMs int64 `json:"request_timeout_ms"`
	ConnectTimeoutMs int64 `json:"connect_timeout_ms"`

	WarmupMs      int64  `json:"warmup_ms"`
	DeadlineMs    int64  `json:"deadline_ms"`
	DrainWindowMs int64  `json:"drain_window_ms"`
	WaitOngoing   bool   `json:"wait_ongoing"`
	TotalRequestCap *int64 `json:"total_request_cap,omitempty"`

	ExpectedStatusCodes  []int      `json:"expected_status_codes,omitempty"`
	ExpectedStatusRanges [][2]int   `json:"expected_status_ranges,omitempty"`

	TransportKind     string `json:"transport_kind"`
	LatencyCorrection bool   `json:"latency_correction"`

	MetricsMax      int    `json:"metrics_max"`
	StreamSummaries bool   `json:"stream_summaries"`
}

type stageProfileJSON struct {
	InitialRate float64     `json:"initial_rate"`
	Stages      []stageJSON `json:"stages"`
}

type stageJSON struct {
	DurationMs int64   `json:"duration_ms"`
	Kind       string  `json:"kind"` // "rate" | "rpm" | "concurrency"
	Value      float64 `json:"value"`
}

// EncodeRunConfig converts cfg to its JSON-safe mirror and marshals it.
func EncodeRunConfig(cfg *RunConfig) ([]byte, error) {
	if cfg == nil {
		return nil, errs.New("config.EncodeRunConfig", errs.ConfigValidation, "", fmt.Errorf("nil RunConfig"))
	}
	out := RunConfigJSON{
		RunID:            cfg.RunID,
		BaseURL:          cfg.BaseURL,
		MaxTasks:         cfg.MaxTasks.Int(),
		SpawnRate:        cfg.SpawnRamp.Rate,
		SpawnInterval:    cfg.SpawnRamp.IntervalMs,
		RequestTimeoutMs: cfg.Timeouts.RequestTimeout.Duration().Milliseconds(),
		ConnectTimeoutMs: cfg.Timeouts.ConnectTimeout.Duration().Milliseconds(),
		WarmupMs:         cfg.Warmup.Milliseconds(),
		DeadlineMs:       cfg.Deadline.Milliseconds(),
		DrainWindowMs:    cfg.DrainWindow.Milliseconds(),
		WaitOngoing:      cfg.WaitOngoing,
		TotalRequestCap:  cfg.TotalRequestCap,
		ExpectedStatusCodes:  cfg.ExpectedStatus.Codes,
		ExpectedStatusRanges: cfg.ExpectedStatus.Ranges,
		TransportKind:        cfg.TransportKind,
		LatencyCorrection:    cfg.LatencyCorrection,
		MetricsMax:           cfg.Retention.MetricsMax,
		StreamSummaries:      cfg.StreamSummaries,
	}
	if cfg.Profile != nil {
		sp := &stageProfileJSON{InitialRate: cfg.Profile.InitialRate}
		for _, st := range cfg.Profile.Stages {
			sj := stageJSON{DurationMs: st.Duration.Duration().Milliseconds()}
			switch st.Target.Kind() {
			case TargetKindRate:
				rate, _ := st.Target.RatePerSecond()
				sj.Kind, sj.Value = "rate", rate
			case TargetKindRPM:
				rate, _ := st.Target.RatePerSecond()
				sj.Kind, sj.Value = "rpm", rate*60
			case TargetKindConcurrency:
				n, _ := st.Target.ConcurrencyTarget()
				sj.Kind, sj.Value = "concurrency", float64(n)
			}
			sp.Stages = append(sp.Stages, sj)
		}
		out.Profile = sp
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, errs.New("config.EncodeRunConfig", errs.ConfigValidation, cfg.RunID, err)
	}
	return data, nil
}

// DecodeRunConfig is the inverse of EncodeRunConfig, validating every
// constrained wrapper type it reconstructs.
func DecodeRunConfig(data []byte) (*RunConfig, error) {
	var in RunConfigJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, errs.New("config.DecodeRunConfig", errs.ConfigValidation, "", err)
	}

	maxTasks, err := NewPositiveInt("max_tasks", in.MaxTasks)
	if err != nil {
		return nil, err
	}
	reqTimeout, err := NewPositiveDuration("request_timeout", time.Duration(in.RequestTimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	connTimeout, err := NewPositiveDuration("connect_timeout", time.Duration(in.ConnectTimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg := &RunConfig{
		RunID:    in.RunID,
		BaseURL:  in.BaseURL,
		MaxTasks: maxTasks,
		SpawnRamp: SpawnRamp{Rate: in.SpawnRate, IntervalMs: in.SpawnInterval},
		Timeouts: TimeoutConfig{RequestTimeout: reqTimeout, ConnectTimeout: connTimeout},
		Warmup:          time.Duration(in.WarmupMs)*time.Millisecond,
		Deadline:        time.Duration(in.DeadlineMs)*time.Millisecond,
		DrainWindow:     time.Duration(in.DrainWindowMs)*time.Millisecond,
		WaitOngoing:     in.WaitOngoing,
		TotalRequestCap: in.TotalRequestCap,
		ExpectedStatus: ExpectedStatusPolicy{
			Codes:  in.ExpectedStatusCodes,
			Ranges: in.ExpectedStatusRanges,
		},
		TransportKind:     in.TransportKind,
		LatencyCorrection: in.LatencyCorrection,
		Retention:         RetentionConfig{MetricsMax: in.MetricsMax},
		StreamSummaries:   in.StreamSummaries,
	}
	if cfg.Retention.MetricsMax <= 0 {
		cfg.Retention = DefaultRetentionConfig()
	}
	if cfg.SpawnRamp.Rate <= 0 {
		cfg.SpawnRamp = DefaultSpawnRamp()
	}

	if in.Profile != nil {
		stages := make([]Stage, 0, len(in.Profile.Stages))
		for _, sj := range in.Profile.Stages {
			dur, err := NewPositiveDuration("stage.duration", time.Duration(sj.DurationMs)*time.Millisecond)
			if err != nil {
				return nil, err
			}
			var target StageTarget
			switch sj.Kind {
			case "rate":
				target = Rate(sj.Value)
			case "rpm":
				target = RPM(sj.Value)
			case "concurrency":
				target = Concurrency(int(sj.Value))
			default:
				return nil, errs.New("config.DecodeRunConfig", errs.ConfigValidation, "stage.kind",
					fmt.Errorf("unknown stage target kind %q", sj.Kind))
			}
			stage, err := NewStage(dur, target)
			if err != nil {
				return nil, err
			}
			stages = append(stages, stage)
		}
		cfg.Profile = NewLoadProfile(in.Profile.InitialRate, stages)
	}

	return cfg, nil
}
