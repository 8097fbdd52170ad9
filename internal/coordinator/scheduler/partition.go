package scheduler

import (
	"errors"
	"sort"
)

// ErrNoAgents is returned when partitioning is attempted with no weighted
// agents to divide work across.
var ErrNoAgents = errors.New("coordinator: no agents to partition across")

// WeightedAgent is one partitioning input: an agent ID and its relative
// share of the total load.
type WeightedAgent struct {
	ID     string
	Weight float64
}

// Share is one agent's partitioned slice of an integer total.
type Share struct {
	ID    string
	Count int
}

// PartitionInt divides total across agents proportionally to weight using
// the largest-remainder method: each agent first gets
// floor(total * weight / totalWeight), then the remaining units (total minus
// the sum of floors) go one at a time to the agents with the largest
// fractional remainder, breaking ties by agent ID for determinism.
func PartitionInt(total int, agents []WeightedAgent) ([]Share, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	if total <= 0 {
		out := make([]Share, len(agents))
		for i, a := range agents {
			out[i] = Share{ID: a.ID, Count: 0}
		}
		return out, nil
	}

	totalWeight := 0.0
	for _, a := range agents {
		totalWeight += a.Weight
	}
	if totalWeight <= 0 {
		// No usable weights: split as evenly as possible.
		equal := make([]WeightedAgent, len(agents))
		for i, a := range agents {
			equal[i] = WeightedAgent{ID: a.ID, Weight: 1}
		}
		return PartitionInt(total, equal)
	}

	type frac struct {
		id   string
		base int
		rem  float64
	}
	fracs := make([]frac, len(agents))
	assigned := 0
	for i, a := range agents {
		exact := float64(total) * a.Weight / totalWeight
		base := int(exact)
		fracs[i] = frac{id: a.ID, base: base, rem: exact - float64(base)}
		assigned += base
	}

	remaining := total - assigned
	sort.Slice(fracs, func(i, j int) bool {
		if fracs[i].rem != fracs[j].rem {
			return fracs[i].rem > fracs[j].rem
		}
		return fracs[i].id < fracs[j].id
	})
	for i := 0; i < remaining && i < len(fracs); i++ {
		fracs[i].base++
	}

	byID := make(map[string]int, len(fracs))
	for _, f := range fracs {
		byID[f.id] = f.base
	}
	out := make([]Share, len(agents))
	for i, a := range agents {
		out[i] = Share{ID: a.ID, Count: byID[a.ID]}
	}
	return out, nil
}

// PartitionRate divides a target requests-per-second rate across agents
// proportionally to weight. Unlike PartitionInt this returns floats directly since a
// rate has no integer-unit remainder to distribute.
func PartitionRate(totalRPS float64, agents []WeightedAgent) (map[string]float64, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	totalWeight := 0.0
	for _, a := range agents {
		totalWeight += a.Weight
	}
	out := make(map[string]float64, len(agents))
	if totalWeight <= 0 {
		share := totalRPS / float64(len(agents))
		for _, a := range agents {
			out[a.ID] = share
		}
		return out, nil
	}
	for _, a := range agents {
		out[a.ID] = totalRPS * a.Weight / totalWeight
	}
	return out, nil
}
