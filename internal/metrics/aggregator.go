// Package metrics implements the run's metrics pipeline: raw per-shard
// logs, HDR histogram aggregation, time-bucketed chart series, and the
// periodically-published Summary Frame. Producers record the durable state
// (shard log, histograms, tallies) synchronously via Offer; only the
// chart-bound aggregates travel over a bounded channel to the single
// aggregator goroutine and may be sampled away under backpressure.
package metrics

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/events"
	"github.com/Lythaeon/strest/internal/histogram"
	"github.com/Lythaeon/strest/internal/retention"
	"github.com/Lythaeon/strest/internal/types"
)

// DefaultPublishInterval is how often the aggregator freezes and publishes a
// new SummaryFrame for readers (sinks, control-plane heartbeats).
const DefaultPublishInterval = 250 * time.Millisecond

// Aggregator is the owner of a run's in-memory metrics state, split across
// two paths. The synchronous path (Offer/recordCore) is taken by every
// producer for every outcome: shard log append, histogram updates, and the
// cumulative tallies, guarded by a short mutex and never dropped. The
// channel path carries outcomes to the aggregator goroutine for the chart
// series (per-second buckets, reservoir) and is the only part subject to
// backpressure sampling. Readers only ever see the published, immutable
// SummaryFrame.
type Aggregator struct {
	runID   string
	warmup  time.Duration
	started time.Time

	shards []*ShardWriter

	// mu guards the producer-updated state below; it is held only for the
	// in-memory update, never across I/O or a channel operation.
	mu          sync.Mutex
	histAll     *histogram.Histogram
	histOk      *histogram.Histogram
	statusTally map[int]int64
	classTally  map[string]int64
	totalBytes  int64
	maxInFlight int

	// Aggregator-goroutine-owned chart state.
	buckets   map[int64]*Bucket
	reservoir *retention.ReservoirSampler

	aggCh      chan types.RequestOutcome
	dropped    atomic.Int64
	closeInput sync.Once

	latest atomic.Pointer[SummaryFrame]

	publishInterval time.Duration
}

// NewAggregator builds an aggregator for one run. shards may be nil or
// empty (metrics without raw log persistence, e.g. unit tests).
func NewAggregator(runID string, retentionCfg config.RetentionConfig, warmup time.Duration, started time.Time, shards []*ShardWriter) *Aggregator {
	a := &Aggregator{
		runID:           runID,
		warmup:          warmup,
		started:         started,
		shards:          shards,
		histAll:         histogram.New(),
		histOk:          histogram.New(),
		statusTally:     make(map[int]int64),
		classTally:      make(map[string]int64),
		buckets:         make(map[int64]*Bucket),
		reservoir:       retention.NewReservoirSampler(retentionCfg.MetricsMax),
		aggCh:           make(chan types.RequestOutcome, config.DefaultOutcomeChannelCapacity),
		publishInterval: DefaultPublishInterval,
	}
	a.latest.Store(&SummaryFrame{RunID: runID, StatusTally: map[int]int64{}, ClassTally: map[string]int64{}})
	return a
}

// Offer is the producer entry point, safe for concurrent workers. The
// durable state is updated synchronously before the chart-bound copy is
// forwarded; a run never drops a histogram update or a shard-log row, no
// matter how far behind the aggregator falls. The return value reports
// whether the chart aggregate was enqueued.
func (a *Aggregator) Offer(o types.RequestOutcome) bool {
	a.recordCore(o)

	// Past the high-water mark the chart copy is dropped with probability
	// 1 - free/capacity, so sampling ramps up smoothly as the channel
	// fills instead of cutting over at full.
	capacity := cap(a.aggCh)
	if capacity > 0 {
		used := len(a.aggCh)
		if float64(used) >= config.DefaultHighWaterMarkPct*float64(capacity) {
			free := capacity - used
			if rand.Float64() < 1-float64(free)/float64(capacity) {
				a.dropped.Add(1)
				return false
			}
		}
	}
	select {
	case a.aggCh <- o:
		return true
	default:
		a.dropped.Add(1)
		return false
	}
}

// CloseInput marks the end of production; Run drains what remains and
// returns. Offer must not be called after CloseInput.
func (a *Aggregator) CloseInput() {
	a.closeInput.Do(func() { close(a.aggCh) })
}

// DroppedAggregates reports how many chart-bound copies were sampled away
// under backpressure. Shard logs saw every one of them, and histograms
// every one past warmup.
func (a *Aggregator) DroppedAggregates() int64 {
	return a.dropped.Load()
}

// Run consumes chart-bound outcomes until CloseInput is called and the
// channel drains, periodically publishing a frozen SummaryFrame.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.publishInterval)
	defer ticker.Stop()

	for {
		select {
		case o, ok := <-a.aggCh:
			if !ok {
				if n := a.dropped.Load(); n > 0 {
					events.GetGlobalEventLogger().LogBackpressureDrop(n)
				}
				a.publish()
				return
			}
			a.aggregate(o)
		case <-ticker.C:
			a.publish()
		case <-ctx.Done():
			// Drain whatever producers managed to enqueue; the caller
			// closes the input once the engine finishes its own drain.
			for o := range a.aggCh {
				a.aggregate(o)
			}
			a.publish()
			return
		}
	}
}

// Ingest folds one outcome through both paths synchronously. The replay
// engine calls it from a single goroutine so replayed aggregation is
// deterministic and bypasses the sampling policy entirely.
func (a *Aggregator) Ingest(o types.RequestOutcome) {
	a.recordCore(o)
	a.aggregate(o)
}

// Publish freezes and publishes a SummaryFrame immediately, outside Run's
// ticker cadence.
func (a *Aggregator) Publish() {
	a.publish()
}

// recordCore is the never-dropped half: shard log, histograms, tallies.
// Warmup outcomes reach the shard log only; histograms and tallies, like
// the chart view, exclude them.
func (a *Aggregator) recordCore(o types.RequestOutcome) {
	if len(a.shards) > 0 {
		sh := a.shards[o.ShardID%len(a.shards)]
		if err := sh.Write(o); err != nil {
			// Log I/O failures never abort the run; the shard keeps
			// accepting writes and other shards are unaffected.
			events.GetGlobalEventLogger().LogShardError(sh.Path(), err)
		}
	}
	if a.inWarmup(o) {
		return
	}

	a.mu.Lock()
	a.histAll.RecordValue(o.LatencyNs)
	if o.IsOk() {
		a.histOk.RecordValue(o.LatencyNs)
	}
	a.statusTally[o.Status]++
	a.classTally[o.Class.String()]++
	a.totalBytes += o.ResponseBytes
	if o.InFlightAtStart > a.maxInFlight {
		a.maxInFlight = o.InFlightAtStart
	}
	a.mu.Unlock()
}

// aggregate is the chart-bound half, owned by the aggregator goroutine.
func (a *Aggregator) aggregate(o types.RequestOutcome) {
	if a.inWarmup(o) {
		return
	}

	a.reservoir.Offer(o)

	sec := o.TimestampUs / 1_000_000
	b, exists := a.buckets[sec]
	if !exists {
		b = NewBucket(sec)
		a.buckets[sec] = b
	}
	b.Add(o)
}

// inWarmup reports whether o's timestamp falls before the warmup boundary,
// in which case it is excluded from histograms, tallies and chart
// aggregation but was still recorded to the raw shard log.
func (a *Aggregator) inWarmup(o types.RequestOutcome) bool {
	if a.warmup <= 0 {
		return false
	}
	return time.Duration(o.TimestampUs)*time.Microsecond < a.warmup
}

func (a *Aggregator) publish() {
	a.mu.Lock()
	frame := &SummaryFrame{
		RunID:          a.runID,
		ElapsedSeconds: time.Since(a.started).Seconds(),
		TotalRequests:  a.histAll.TotalCount(),
		TotalOk:        a.histOk.TotalCount(),
		TotalErrors:    a.histAll.TotalCount() - a.histOk.TotalCount(),
		StatusTally:    cloneIntMap(a.statusTally),
		ClassTally:     cloneStrMap(a.classTally),
		TotalBytes:     a.totalBytes,
		MaxInFlight:    a.maxInFlight,
		HistAll:        a.histAll.Clone(),
		HistOk:         a.histOk.Clone(),
	}
	a.mu.Unlock()
	a.latest.Store(frame)
}

// Latest returns the most recently published SummaryFrame, safe to read
// from any goroutine without locking.
func (a *Aggregator) Latest() *SummaryFrame {
	return a.latest.Load()
}

// Buckets returns the chart-series buckets built so far, ordered by second
// index. It is only safe to call after Run has returned (end of run), or
// from the aggregator's own goroutine.
func (a *Aggregator) Buckets() []*Bucket {
	out := make([]*Bucket, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, b)
	}
	sortBuckets(out)
	return out
}

// ChartSamples returns the retained reservoir of chart-visible outcomes.
func (a *Aggregator) ChartSamples() []types.RequestOutcome {
	return a.reservoir.Samples()
}

func sortBuckets(b []*Bucket) {
	for i := 1; i < len(b); i++ {
		j := i
		for j > 0 && b[j-1].SecondIndex > b[j].SecondIndex {
			b[j-1], b[j] = b[j], b[j-1]
			j--
		}
	}
}

func cloneIntMap(m map[int]int64) map[int]int64 {
	out := make(map[int]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStrMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
