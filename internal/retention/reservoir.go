package retention

import (
	"math/rand"
	"sync"

	"github.com/Lythaeon/strest/internal/types"
)

// ReservoirSampler bounds the chart-visible outcome set to at most capacity
// samples using reservoir sampling (Algorithm R), chosen over drop-newest
// so replayed runs make the same retention decisions. Histograms are never
// subject to this cap; this sampler only feeds chart series.
type ReservoirSampler struct {
	capacity int
	mu       sync.Mutex
	seen     int64
	samples  []types.RequestOutcome
	rng      *rand.Rand
}

// NewReservoirSampler builds a sampler retaining at most capacity outcomes.
// capacity <= 0 means unbounded (every offered outcome is kept).
func NewReservoirSampler(capacity int) *ReservoirSampler {
	return &ReservoirSampler{
		capacity: capacity,
		samples:  make([]types.RequestOutcome, 0, maxInt(capacity, 0)),
		rng:      rand.New(rand.NewSource(1)),
	}
}

// Offer presents one more outcome to the reservoir. Before the reservoir
// fills, every outcome is kept; at exactly capacity outcomes no sampling
// has yet kicked in, and the (capacity+1)th offer is the first that may
// evict an existing sample.
func (r *ReservoirSampler) Offer(o types.RequestOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen++
	if r.capacity <= 0 || int64(len(r.samples)) < int64(r.capacity) {
		r.samples = append(r.samples, o)
		return
	}
	j := r.rng.Int63n(r.seen)
	if j < int64(r.capacity) {
		r.samples[j] = o
	}
}

// Samples returns a copy of the currently retained set.
func (r *ReservoirSampler) Samples() []types.RequestOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.RequestOutcome, len(r.samples))
	copy(out, r.samples)
	return out
}

// Len reports the current reservoir size (<= capacity).
func (r *ReservoirSampler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Seen reports the total number of outcomes ever offered.
func (r *ReservoirSampler) Seen() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
