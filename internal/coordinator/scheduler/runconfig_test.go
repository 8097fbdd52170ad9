package scheduler

import (
	"testing"
	"time"

	cfgpkg "github.com/Lythaeon/strest/internal/config"
)

func testRunConfig(t *testing.T, rate float64, maxTasks int) *cfgpkg.RunConfig {
	t.Helper()
	stage, err := cfgpkg.NewStage(
		cfgpkg.MustPositiveDuration("stage.duration", 10*time.Second),
		cfgpkg.Rate(rate),
	)
	if err != nil {
		t.Fatal(err)
	}
	return &cfgpkg.RunConfig{
		RunID:    "run-part",
		BaseURL:  "http://localhost:9000",
		Profile:  cfgpkg.NewLoadProfile(rate, []cfgpkg.Stage{stage}),
		MaxTasks: cfgpkg.MustPositiveInt("max_tasks", maxTasks),
		Timeouts: cfgpkg.DefaultTimeoutConfig(),
	}
}

func TestPartitionRunConfigWeightedRates(t *testing.T) {
	cfg := testRunConfig(t, 900, 90)
	agents := []WeightedAgent{
		{ID: "a", Weight: 1},
		{ID: "b", Weight: 2},
	}

	slices, err := PartitionRunConfig(cfg, agents)
	if err != nil {
		t.Fatal(err)
	}
	if len(slices) != 2 {
		t.Fatalf("got %d slices", len(slices))
	}

	if got := slices["a"].Profile.RateAt(0); got != 300 {
		t.Errorf("agent a initial rate = %g, want 300", got)
	}
	if got := slices["b"].Profile.RateAt(0); got != 600 {
		t.Errorf("agent b initial rate = %g, want 600", got)
	}
	if got := slices["a"].MaxTasks.Int() + slices["b"].MaxTasks.Int(); got != 90 {
		t.Errorf("max tasks sum = %d, want 90", got)
	}
}

func TestPartitionRunConfigIntegerRatesSumExactly(t *testing.T) {
	cfg := testRunConfig(t, 100, 30)
	agents := []WeightedAgent{
		{ID: "a", Weight: 1},
		{ID: "b", Weight: 1},
		{ID: "c", Weight: 1},
	}

	slices, err := PartitionRunConfig(cfg, agents)
	if err != nil {
		t.Fatal(err)
	}

	var sum float64
	for _, s := range slices {
		sum += s.Profile.RateAt(0)
	}
	if sum != 100 {
		t.Errorf("rate shares sum to %g, want exactly 100", sum)
	}
}

func TestPartitionRunConfigTotalRequestCap(t *testing.T) {
	cfg := testRunConfig(t, 100, 10)
	total := int64(1001)
	cfg.TotalRequestCap = &total
	agents := []WeightedAgent{
		{ID: "a", Weight: 1},
		{ID: "b", Weight: 1},
	}

	slices, err := PartitionRunConfig(cfg, agents)
	if err != nil {
		t.Fatal(err)
	}
	var sum int64
	for _, s := range slices {
		if s.TotalRequestCap == nil {
			t.Fatal("slice lost its request cap")
		}
		sum += *s.TotalRequestCap
	}
	if sum != 1001 {
		t.Errorf("cap shares sum to %d, want 1001", sum)
	}
}

func TestPartitionRunConfigNoAgents(t *testing.T) {
	cfg := testRunConfig(t, 100, 10)
	if _, err := PartitionRunConfig(cfg, nil); err == nil {
		t.Fatal("expected ErrNoAgents")
	}
}

func TestPartitionRunConfigTinyShareStillRuns(t *testing.T) {
	cfg := testRunConfig(t, 10, 2)
	agents := []WeightedAgent{
		{ID: "a", Weight: 1},
		{ID: "b", Weight: 1},
		{ID: "c", Weight: 1},
	}
	slices, err := PartitionRunConfig(cfg, agents)
	if err != nil {
		t.Fatal(err)
	}
	for id, s := range slices {
		if s.MaxTasks.Int() < 1 {
			t.Errorf("agent %s got %d workers, want >= 1", id, s.MaxTasks.Int())
		}
	}
}
