package config

import "github.com/Lythaeon/strest/internal/errs"

// TargetKind tags which member of the Stage target variant is set.
type TargetKind int

const (
	// TargetKindRate is a requests/sec target.
	TargetKindRate TargetKind = iota
	// TargetKindRPM is a requests/minute target.
	TargetKindRPM
	// TargetKindConcurrency is a closed-loop concurrency (max_tasks) target;
	// the engine saturates concurrency rather than pacing a rate.
	TargetKindConcurrency
)

// StageTarget is a tagged variant carrying exactly one of {target, rate,
// rpm}, per the design note that stage targets must not be modeled as
// independent optional fields.
type StageTarget struct {
	kind  TargetKind
	value float64
}

// Rate builds a requests/sec stage target.
func Rate(rps float64) StageTarget { return StageTarget{kind: TargetKindRate, value: rps} }

// RPM builds a requests/minute stage target.
func RPM(rpm float64) StageTarget { return StageTarget{kind: TargetKindRPM, value: rpm} }

// Concurrency builds a closed-loop concurrency stage target.
func Concurrency(n int) StageTarget {
	return StageTarget{kind: TargetKindConcurrency, value: float64(n)}
}

// Kind reports which variant is set.
func (t StageTarget) Kind() TargetKind { return t.kind }

// RatePerSecond normalizes rate/rpm targets to requests/sec. Concurrency
// targets have no rate interpretation and return 0, false.
func (t StageTarget) RatePerSecond() (float64, bool) {
	switch t.kind {
	case TargetKindRate:
		return t.value, true
	case TargetKindRPM:
		return t.value / 60.0, true
	default:
		return 0, false
	}
}

// ConcurrencyTarget returns the concurrency value for a TargetKindConcurrency
// variant.
func (t StageTarget) ConcurrencyTarget() (int, bool) {
	if t.kind != TargetKindConcurrency {
		return 0, false
	}
	return int(t.value), true
}

// Stage is one segment of a Load Profile: a positive duration and a target.
type Stage struct {
	Duration PositiveDuration
	Target   StageTarget
}

// NewStage validates duration and constructs a Stage.
func NewStage(duration PositiveDuration, target StageTarget) (Stage, error) {
	if duration.Duration() <= 0 {
		return Stage{}, errs.New("config.NewStage", errs.ConfigValidation, "duration",
			errAny("stage duration must be positive"))
	}
	return Stage{Duration: duration, Target: target}, nil
}

type plainError string

func (e plainError) Error() string { return string(e) }

func errAny(msg string) error { return plainError(msg) }
