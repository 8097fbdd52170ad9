package loadgen

import (
	"context"
	"time"

	cfgpkg "github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/events"
	"github.com/Lythaeon/strest/internal/otel"
)

// profileTickInterval bounds scheduling jitter: a tick finer than any
// spawn_interval_ms keeps the piecewise-linear rate close to its ideal
// curve.
const profileTickInterval = 25 * time.Millisecond

// ProfileClock drives a RateLimiter's target from a LoadProfile's
// instantaneous rate r(t), re-evaluating every tick so the
// limiter always paces against the current point on the piecewise-linear
// curve rather than a single static target.
type ProfileClock struct {
	profile *cfgpkg.LoadProfile
	limiter *RateLimiter
	start   time.Time

	lastStage int
}

// NewProfileClock builds a clock that updates limiter from profile,
// anchored at start (the run's t=0).
func NewProfileClock(profile *cfgpkg.LoadProfile, limiter *RateLimiter, start time.Time) *ProfileClock {
	return &ProfileClock{profile: profile, limiter: limiter, start: start, lastStage: -1}
}

// Run ticks until ctx is done. If profile is nil, the clock is a no-op —
// the limiter's static target (or lack of one, for closed-loop runs)
// stands.
func (c *ProfileClock) Run(ctx context.Context) {
	if c.profile == nil {
		return
	}
	ticker := time.NewTicker(profileTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(c.start).Seconds()
			rate := c.profile.RateAt(elapsed)
			c.limiter.UpdateTargetRPS(rate)
			stage := c.profile.StageIndexAt(elapsed)
			otel.GetGlobalMetrics().SetCurrentStage(stage)
			if stage != c.lastStage {
				c.lastStage = stage
				events.GetGlobalEventLogger().LogStageTransition(stage, rate, int64(elapsed*1000))
			}
		}
	}
}
