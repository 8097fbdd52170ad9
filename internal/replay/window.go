package replay

import (
	"time"

	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/types"
)

// Bound is one edge of a replay window: pinned to the data's own extent
// ("min"/"max") or an offset from the start of the data.
type Bound struct {
	FromEdge bool          // true: use the data's own min (start bound) or max (end bound)
	Offset   time.Duration // valid when FromEdge is false
}

// ParseBound parses "min", "max", or a duration ("10s", "2m").
func ParseBound(s string) (Bound, error) {
	switch s {
	case "", "min", "max":
		return Bound{FromEdge: true}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Bound{}, errs.New("replay.ParseBound", errs.ConfigValidation, s, err)
	}
	if d < 0 {
		return Bound{}, errs.New("replay.ParseBound", errs.ConfigValidation, s, errNegativeBound)
	}
	return Bound{Offset: d}, nil
}

// Window is the half-open replay time range; outcomes outside it are
// discarded before aggregation.
type Window struct {
	Start Bound
	End   Bound
}

// FullWindow keeps every outcome.
func FullWindow() Window {
	return Window{Start: Bound{FromEdge: true}, End: Bound{FromEdge: true}}
}

// Apply filters outcomes (assumed timestamp-sorted) to the window. Offsets
// are relative to the first outcome's timestamp, so a window of
// {Start: 10s, End: 20s} keeps the second ten seconds of the run
// regardless of whether timestamps are monotonic-since-start or wall
// micros.
func (w Window) Apply(outcomes []types.RequestOutcome) []types.RequestOutcome {
	if len(outcomes) == 0 {
		return outcomes
	}
	base := outcomes[0].TimestampUs

	startUs := outcomes[0].TimestampUs
	if !w.Start.FromEdge {
		startUs = base + w.Start.Offset.Microseconds()
	}
	endUs := outcomes[len(outcomes)-1].TimestampUs
	if !w.End.FromEdge {
		endUs = base + w.End.Offset.Microseconds()
	}

	lo := 0
	for lo < len(outcomes) && outcomes[lo].TimestampUs < startUs {
		lo++
	}
	hi := len(outcomes)
	for hi > lo && outcomes[hi-1].TimestampUs > endUs {
		hi--
	}
	return outcomes[lo:hi]
}

type negativeBoundErr struct{}

func (negativeBoundErr) Error() string { return "window bound must not be negative" }

var errNegativeBound = negativeBoundErr{}
