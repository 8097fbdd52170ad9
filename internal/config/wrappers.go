package config

import (
	"fmt"
	"time"

	"github.com/Lythaeon/strest/internal/errs"
)

// PositiveInt is a constrained wrapper rejecting zero/negative values at
// construction, per the "invalid states unrepresentable" design note.
type PositiveInt struct {
	v int
}

// NewPositiveInt validates and wraps n. An error here carries
// errs.ConfigValidation.
func NewPositiveInt(field string, n int) (PositiveInt, error) {
	if n <= 0 {
		return PositiveInt{}, errs.New("config.NewPositiveInt", errs.ConfigValidation, field,
			fmt.Errorf("%s must be > 0, got %d", field, n))
	}
	return PositiveInt{v: n}, nil
}

// MustPositiveInt panics on an invalid value; for constants known at compile time.
func MustPositiveInt(field string, n int) PositiveInt {
	p, err := NewPositiveInt(field, n)
	if err != nil {
		panic(err)
	}
	return p
}

// Int returns the underlying value.
func (p PositiveInt) Int() int { return p.v }

// PositiveDuration is a constrained wrapper rejecting zero/negative durations.
type PositiveDuration struct {
	d time.Duration
}

func NewPositiveDuration(field string, d time.Duration) (PositiveDuration, error) {
	if d <= 0 {
		return PositiveDuration{}, errs.New("config.NewPositiveDuration", errs.ConfigValidation, field,
			fmt.Errorf("%s must be > 0, got %s", field, d))
	}
	return PositiveDuration{d: d}, nil
}

func MustPositiveDuration(field string, d time.Duration) PositiveDuration {
	p, err := NewPositiveDuration(field, d)
	if err != nil {
		panic(err)
	}
	return p
}

// Duration returns the underlying time.Duration.
func (p PositiveDuration) Duration() time.Duration { return p.d }

// Percentage is a constrained wrapper for values in [0, 100].
type Percentage struct {
	v float64
}

func NewPercentage(field string, v float64) (Percentage, error) {
	if v < 0 || v > 100 {
		return Percentage{}, errs.New("config.NewPercentage", errs.ConfigValidation, field,
			fmt.Errorf("%s must be within [0,100], got %f", field, v))
	}
	return Percentage{v: v}, nil
}

// Float64 returns the underlying value.
func (p Percentage) Float64() float64 { return p.v }
