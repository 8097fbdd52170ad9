package config

// LoadProfile is an ordered sequence of stages plus an optional initial rate
// that applies from t=0 until the first stage begins.
type LoadProfile struct {
	InitialRate float64 // requests/sec; 0 means the first stage ramps up from 0
	Stages      []Stage

	// stageStarts[i] is the elapsed time at which Stages[i] begins.
	stageStarts []float64
}

// NewLoadProfile precomputes stage start offsets for RateAt, which scans
// them linearly.
func NewLoadProfile(initialRate float64, stages []Stage) *LoadProfile {
	starts := make([]float64, len(stages))
	var t float64
	for i, s := range stages {
		starts[i] = t
		t += s.Duration.Duration().Seconds()
	}
	return &LoadProfile{InitialRate: initialRate, Stages: stages, stageStarts: starts}
}

// endpointRate returns the rate this stage's target represents at its own
// end, for interpolation purposes. Concurrency-kind stages have no rate
// interpretation; ok is false.
func endpointRate(s Stage) (float64, bool) {
	return s.Target.RatePerSecond()
}

// RateAt computes the instantaneous open-loop target rate at elapsed time t
// (seconds since run start), per the piecewise-linear interpolation
// invariant: at time t, the rate linearly interpolates from the previous
// segment's endpoint rate to the current stage's target; before the first
// stage and after the last, the rate is the nearest endpoint value.
func (p *LoadProfile) RateAt(t float64) float64 {
	if len(p.Stages) == 0 {
		return p.InitialRate
	}
	if t <= p.stageStarts[0] {
		return p.InitialRate
	}
	last := len(p.Stages) - 1
	lastEnd := p.stageStarts[last] + p.Stages[last].Duration.Duration().Seconds()
	if t >= lastEnd {
		if r, ok := endpointRate(p.Stages[last]); ok {
			return r
		}
		return p.InitialRate
	}
	for i, start := range p.stageStarts {
		dur := p.Stages[i].Duration.Duration().Seconds()
		end := start + dur
		if t < start || t >= end {
			continue
		}
		prevRate := p.InitialRate
		if i > 0 {
			if r, ok := endpointRate(p.Stages[i-1]); ok {
				prevRate = r
			}
		}
		curRate, ok := endpointRate(p.Stages[i])
		if !ok {
			// Closed-loop (concurrency) stage: no rate to pace against.
			return prevRate
		}
		if dur == 0 {
			return curRate
		}
		frac := (t - start) / dur
		return prevRate + frac*(curRate-prevRate)
	}
	return p.InitialRate
}

// StageIndexAt returns the index of the stage active at elapsed time t, or
// -1 before the first stage begins (or when the profile has no stages). A
// run past the end of the last stage reports the last stage's index, since
// RateAt holds that stage's endpoint rate indefinitely.
func (p *LoadProfile) StageIndexAt(t float64) int {
	if len(p.Stages) == 0 {
		return -1
	}
	if t < p.stageStarts[0] {
		return -1
	}
	last := len(p.Stages) - 1
	for i, start := range p.stageStarts {
		dur := p.Stages[i].Duration.Duration().Seconds()
		end := start + dur
		if t >= start && (t < end || i == last) {
			return i
		}
	}
	return last
}

// TotalDuration returns the sum of all stage durations, in seconds.
func (p *LoadProfile) TotalDuration() float64 {
	if len(p.Stages) == 0 {
		return 0
	}
	last := len(p.Stages) - 1
	return p.stageStarts[last] + p.Stages[last].Duration.Duration().Seconds()
}
