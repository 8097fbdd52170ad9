package scheduler

import (
	"math"

	cfgpkg "github.com/Lythaeon/strest/internal/config"
)

// PartitionRunConfig slices one effective RunConfig into per-agent copies:
// concurrency caps, rate targets, stage targets, and the total-request cap
// all divide proportionally to weight. Integer quantities (max_tasks,
// request cap, whole-number rates) use the largest-remainder method so the
// per-agent shares sum exactly to the global value.
func PartitionRunConfig(cfg *cfgpkg.RunConfig, agents []WeightedAgent) (map[string]*cfgpkg.RunConfig, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}

	taskShares, err := PartitionInt(cfg.MaxTasks.Int(), agents)
	if err != nil {
		return nil, err
	}
	tasksByID := make(map[string]int, len(taskShares))
	for _, s := range taskShares {
		tasksByID[s.ID] = s.Count
	}

	var capByID map[string]int
	if cfg.TotalRequestCap != nil {
		shares, err := PartitionInt(int(*cfg.TotalRequestCap), agents)
		if err != nil {
			return nil, err
		}
		capByID = make(map[string]int, len(shares))
		for _, s := range shares {
			capByID[s.ID] = s.Count
		}
	}

	out := make(map[string]*cfgpkg.RunConfig, len(agents))
	for _, a := range agents {
		slice := *cfg

		tasks := tasksByID[a.ID]
		if tasks < 1 {
			tasks = 1 // an agent with a rounding share of 0 still runs one worker
		}
		slice.MaxTasks = cfgpkg.MustPositiveInt("max_tasks", tasks)

		if capByID != nil {
			c := int64(capByID[a.ID])
			slice.TotalRequestCap = &c
		}

		if cfg.Profile != nil {
			slice.Profile = partitionProfile(cfg.Profile, a, agents)
		}
		out[a.ID] = &slice
	}
	return out, nil
}

// partitionProfile scales a load profile to one agent's share. Stage
// durations are untouched; only targets scale.
func partitionProfile(p *cfgpkg.LoadProfile, agent WeightedAgent, agents []WeightedAgent) *cfgpkg.LoadProfile {
	stages := make([]cfgpkg.Stage, 0, len(p.Stages))
	for _, st := range p.Stages {
		switch st.Target.Kind() {
		case cfgpkg.TargetKindRate:
			rate, _ := st.Target.RatePerSecond()
			scaled, _ := cfgpkg.NewStage(st.Duration, cfgpkg.Rate(shareOfRate(rate, agent, agents)))
			stages = append(stages, scaled)
		case cfgpkg.TargetKindRPM:
			rate, _ := st.Target.RatePerSecond()
			scaled, _ := cfgpkg.NewStage(st.Duration, cfgpkg.RPM(shareOfRate(rate*60, agent, agents)))
			stages = append(stages, scaled)
		case cfgpkg.TargetKindConcurrency:
			n, _ := st.Target.ConcurrencyTarget()
			share := shareOfInt(n, agent, agents)
			if share < 1 {
				share = 1
			}
			scaled, _ := cfgpkg.NewStage(st.Duration, cfgpkg.Concurrency(share))
			stages = append(stages, scaled)
		}
	}
	return cfgpkg.NewLoadProfile(shareOfRate(p.InitialRate, agent, agents), stages)
}

// shareOfRate returns this agent's slice of a rate. Whole-number rates go
// through the integer largest-remainder split so the shares sum exactly;
// fractional rates split proportionally.
func shareOfRate(rate float64, agent WeightedAgent, agents []WeightedAgent) float64 {
	if rate <= 0 {
		return 0
	}
	if rate == math.Trunc(rate) {
		return float64(shareOfInt(int(rate), agent, agents))
	}
	shares, err := PartitionRate(rate, agents)
	if err != nil {
		return 0
	}
	return shares[agent.ID]
}

func shareOfInt(total int, agent WeightedAgent, agents []WeightedAgent) int {
	shares, err := PartitionInt(total, agents)
	if err != nil {
		return 0
	}
	for _, s := range shares {
		if s.ID == agent.ID {
			return s.Count
		}
	}
	return 0
}
