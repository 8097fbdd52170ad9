package metrics

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/types"
)

func outcome(tsUs int64, latNs int64, class types.OutcomeClass) types.RequestOutcome {
	return types.RequestOutcome{
		TimestampUs:   tsUs,
		LatencyNs:     latNs,
		Status:        200,
		Class:         class,
		ResponseBytes: 128,
	}
}

func TestShardWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shard-0.log")
	w, err := NewShardWriter(path)
	if err != nil {
		t.Fatalf("NewShardWriter: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Write(outcome(int64(i)*1000, 5_000_000, types.OutcomeOk)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got, err := ReadShard(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadShard: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(got))
	}
	if got[0].Class != types.OutcomeOk || got[0].LatencyNs != 5_000_000 {
		t.Fatalf("row mismatch: %+v", got[0])
	}
}

func TestReadShardToleratesOldFourColumnFormat(t *testing.T) {
	old := "1000,5000000,200,Ok\n2000,6000000,500,Transport\n"
	got, err := ReadShard(bytes.NewReader([]byte(old)))
	if err != nil {
		t.Fatalf("ReadShard: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ResponseBytes != 0 || got[0].InFlightAtStart != 0 {
		t.Fatalf("expected zero defaults for missing trailing columns, got %+v", got[0])
	}
}

func TestAggregatorExcludesWarmupFromBucketsAndHistograms(t *testing.T) {
	a := NewAggregator("run-1", config.DefaultRetentionConfig(), 2*time.Second, time.Now(), nil)

	a.Ingest(outcome(500_000, 1_000_000, types.OutcomeOk))   // warmup (0.5s < 2s)
	a.Ingest(outcome(3_000_000, 2_000_000, types.OutcomeOk)) // post-warmup (3s)
	a.Publish()

	frame := a.Latest()
	if frame.TotalRequests != 1 {
		t.Fatalf("expected only the post-warmup outcome in histogram, got %d", frame.TotalRequests)
	}
	if len(a.buckets) != 1 {
		t.Fatalf("expected warmup outcome excluded from buckets, got %d buckets", len(a.buckets))
	}
}

func TestAggregatorZeroOutcomesNoDivideByZero(t *testing.T) {
	a := NewAggregator("run-2", config.DefaultRetentionConfig(), 0, time.Now(), nil)
	a.CloseInput()
	a.Run(context.Background())

	frame := a.Latest()
	if frame.RatePerSecond() != 0 {
		t.Fatalf("expected zero rate on empty run, got %v", frame.RatePerSecond())
	}
	pct := ComputePercentiles(frame.HistAll)
	if pct.P50 != 0 || pct.Mean != 0 {
		t.Fatalf("expected zero percentiles on empty histogram, got %+v", pct)
	}
}

func TestAggregatorReservoirBoundsChartSamples(t *testing.T) {
	cfg := config.RetentionConfig{MetricsMax: 100}
	a := NewAggregator("run-3", cfg, 0, time.Now(), nil)

	done := make(chan struct{})
	go func() {
		a.Run(context.Background())
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		a.Offer(outcome(int64(i)*1000, 1_000_000, types.OutcomeOk))
	}
	a.CloseInput()
	<-done

	if n := len(a.ChartSamples()); n != 100 {
		t.Fatalf("expected reservoir capped at 100 samples, got %d", n)
	}
	if total := a.Latest().TotalRequests; total != 1000 {
		t.Fatalf("expected all 1000 outcomes reflected in histogram, got %d", total)
	}
}

func TestOfferNeverDropsHistogramsOrShardRows(t *testing.T) {
	dir := t.TempDir()
	w, err := NewShardWriter(filepath.Join(dir, "shard-0.log"))
	if err != nil {
		t.Fatal(err)
	}

	a := NewAggregator("run-bp", config.DefaultRetentionConfig(), 0, time.Now(), []*ShardWriter{w})
	// Shrink the aggregate channel so backpressure is reachable; no
	// consumer runs, so the channel saturates immediately.
	a.aggCh = make(chan types.RequestOutcome, 8)

	const total = 500
	for i := 0; i < total; i++ {
		a.Offer(outcome(int64(i)*1000, 1_000_000, types.OutcomeOk))
	}
	a.Publish()

	if got := a.Latest().TotalRequests; got != total {
		t.Fatalf("histogram saw %d outcomes, want every one of %d", got, total)
	}
	if a.DroppedAggregates() == 0 {
		t.Fatal("expected chart-bound drops with a saturated channel")
	}
	if len(a.aggCh) > cap(a.aggCh) {
		t.Fatalf("channel overfilled: %d/%d", len(a.aggCh), cap(a.aggCh))
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "shard-0.log"))
	if err != nil {
		t.Fatal(err)
	}
	rows, err := ReadShard(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != total {
		t.Fatalf("shard log has %d rows, want every one of %d", len(rows), total)
	}
}

func TestOfferSamplesProbabilisticallyAboveHighWaterMark(t *testing.T) {
	a := NewAggregator("run-hwm", config.DefaultRetentionConfig(), 0, time.Now(), nil)
	a.aggCh = make(chan types.RequestOutcome, 100)

	// Fill to just above the high-water mark; below it nothing drops.
	for i := 0; i < 85; i++ {
		if !a.Offer(outcome(int64(i), 1_000_000, types.OutcomeOk)) && i < 79 {
			t.Fatalf("outcome %d dropped below the high-water mark", i)
		}
	}

	// Above the mark drops are probabilistic, ramping toward certainty as
	// free space vanishes; across many offers some must drop and some must
	// still land while capacity remains.
	var dropped, kept int
	for i := 0; i < 400; i++ {
		if a.Offer(outcome(int64(i), 1_000_000, types.OutcomeOk)) {
			kept++
		} else {
			dropped++
		}
	}
	if dropped == 0 {
		t.Fatal("expected some probabilistic drops above the high-water mark")
	}
	if kept == 0 {
		t.Fatal("expected some offers to land while channel space remained")
	}
}

func TestBucketPercentileFromDistribution(t *testing.T) {
	b := NewBucket(0)
	for i := int64(1); i <= 100; i++ {
		b.Add(outcome(0, i*10_000_000, types.OutcomeOk))
	}
	p50 := b.PercentileAllNs(50)
	if p50 < 400_000_000 || p50 > 600_000_000 {
		t.Fatalf("p50 = %d, out of expected range", p50)
	}
}
