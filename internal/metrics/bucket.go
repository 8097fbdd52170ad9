package metrics

import "github.com/Lythaeon/strest/internal/types"

// subBucketWidthNs is the width of one latency bin within a per-second
// Bucket's distribution arrays.
const subBucketWidthNs = int64(100 * 1_000_000)

// subBucketCount covers latencies up to 2s in 100ms steps; the final slot is
// an overflow bin for anything slower.
const subBucketCount = 21

// Bucket aggregates one wall-clock second of outcomes for the chart series:
// per-status tallies plus two latency distributions ("all" and "ok") coarse
// enough to derive P50/P90/P99 without retaining every sample.
type Bucket struct {
	SecondIndex int64

	Requests         int64
	Ok               int64
	NotExpectedCount int64
	TimeoutCount     int64
	TransportCount   int64
	AssertionFailed  int64
	Bytes            int64
	MaxInFlight      int

	distAll [subBucketCount]int64
	distOk  [subBucketCount]int64
}

// NewBucket constructs an empty bucket for second index sec (seconds elapsed
// since run start).
func NewBucket(sec int64) *Bucket {
	return &Bucket{SecondIndex: sec}
}

// Add folds one outcome into the bucket.
func (b *Bucket) Add(o types.RequestOutcome) {
	b.Requests++
	b.Bytes += o.ResponseBytes
	if o.InFlightAtStart > b.MaxInFlight {
		b.MaxInFlight = o.InFlightAtStart
	}

	bin := o.LatencyNs / subBucketWidthNs
	if bin >= subBucketCount-1 {
		bin = subBucketCount - 1
	}
	if bin < 0 {
		bin = 0
	}
	b.distAll[bin]++

	switch o.Class {
	case types.OutcomeOk:
		b.Ok++
		b.distOk[bin]++
	case types.OutcomeNotExpectedStatus:
		b.NotExpectedCount++
	case types.OutcomeTimeout:
		b.TimeoutCount++
	case types.OutcomeTransport:
		b.TransportCount++
	case types.OutcomeAssertionFailed:
		b.AssertionFailed++
	}
}

// Errors is every non-Ok outcome in this bucket.
func (b *Bucket) Errors() int64 {
	return b.Requests - b.Ok
}

// PercentileAllNs estimates the p-th percentile (0-100) latency across all
// outcomes in this bucket from its coarse distribution.
func (b *Bucket) PercentileAllNs(p float64) int64 {
	return percentileFromDist(b.distAll[:], b.Requests, p)
}

// PercentileOkNs is PercentileAllNs restricted to Ok outcomes.
func (b *Bucket) PercentileOkNs(p float64) int64 {
	return percentileFromDist(b.distOk[:], b.Ok, p)
}

func percentileFromDist(dist []int64, total int64, p float64) int64 {
	if total <= 0 {
		return 0
	}
	target := int64((p / 100.0) * float64(total))
	if target < 1 {
		target = 1
	}
	var cum int64
	for i, c := range dist {
		cum += c
		if cum >= target {
			return int64(i) * subBucketWidthNs
		}
	}
	return int64(len(dist)-1) * subBucketWidthNs
}
