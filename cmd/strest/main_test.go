package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/internal/errs"
)

func TestStageListParsing(t *testing.T) {
	var s stageList

	if err := s.Set("10s:500"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("30s:3000rpm"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("5s:64c"); err != nil {
		t.Fatal(err)
	}
	if len(s) != 3 {
		t.Fatalf("got %d stages", len(s))
	}

	if rate, ok := s[0].Target.RatePerSecond(); !ok || rate != 500 {
		t.Errorf("stage 0 rate = %g, %v", rate, ok)
	}
	if rate, ok := s[1].Target.RatePerSecond(); !ok || rate != 50 {
		t.Errorf("stage 1 rate = %g (rpm normalized), %v", rate, ok)
	}
	if n, ok := s[2].Target.ConcurrencyTarget(); !ok || n != 64 {
		t.Errorf("stage 2 concurrency = %d, %v", n, ok)
	}
	if s[1].Duration.Duration() != 30*time.Second {
		t.Errorf("stage 1 duration = %s", s[1].Duration.Duration())
	}
}

func TestStageListRejectsMalformed(t *testing.T) {
	var s stageList
	for _, bad := range []string{"10s", "abc:500", "0s:500", "10s:x"} {
		if err := s.Set(bad); err == nil {
			t.Errorf("Set(%q) accepted", bad)
		}
	}
}

func TestLoadScenarioRequiresURLOrScript(t *testing.T) {
	f := &cliFlags{maxTasks: 8, reqTimeout: time.Second, connTimeout: time.Second}
	if _, err := loadScenario(f); err == nil {
		t.Fatal("expected validation error with no url and no script")
	}
}

func TestBuildRunConfigRateRPMExclusive(t *testing.T) {
	f := &cliFlags{
		url: "http://localhost:1234", maxTasks: 8,
		reqTimeout: time.Second, connTimeout: time.Second,
		rate: 100, rpm: 600,
	}
	sc, err := loadScenario(f)
	if err != nil {
		t.Fatal(err)
	}
	_, err = buildRunConfig(f, sc)
	if err == nil {
		t.Fatal("expected error for --rate with --rpm")
	}
	if errs.KindOf(err) != errs.ConfigValidation {
		t.Errorf("kind = %s", errs.KindOf(err))
	}
}

func TestBuildRunConfigDefaults(t *testing.T) {
	f := &cliFlags{
		url: "http://localhost:1234", maxTasks: 16,
		reqTimeout: 30 * time.Second, connTimeout: 10 * time.Second,
		rpm: 600, requests: 5000,
	}
	sc, err := loadScenario(f)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := buildRunConfig(f, sc)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Profile == nil || cfg.Profile.RateAt(0) != 10 {
		t.Errorf("rpm 600 should map to 10/s initial rate")
	}
	if cfg.TotalRequestCap == nil || *cfg.TotalRequestCap != 5000 {
		t.Error("request cap not carried")
	}
	if !cfg.WaitOngoing {
		t.Error("wait-ongoing should default on")
	}
	if cfg.Retention.MetricsMax != cfgpkg.DefaultRetentionConfig().MetricsMax {
		t.Errorf("retention = %d", cfg.Retention.MetricsMax)
	}
}

func TestNewRunIDShape(t *testing.T) {
	id := newRunID("http://example.com:8080/path?q=1")
	if !strings.HasPrefix(id, "run-") {
		t.Errorf("id = %s", id)
	}
	if !strings.Contains(id, "example.com-8080") {
		t.Errorf("id missing host-port: %s", id)
	}
	if strings.ContainsAny(id, "/?:") {
		t.Errorf("id has unsafe path characters: %s", id)
	}
}

func TestExitCodeMapping(t *testing.T) {
	tests := []struct {
		kind errs.Kind
		want int
	}{
		{errs.ConfigValidation, exitValidation},
		{errs.Script, exitValidation},
		{errs.TransportSetup, exitValidation},
		{errs.DistributedHandshake, exitDistributed},
		{errs.Auth, exitDistributed},
		{errs.LogIo, exitFatalRuntime},
		{errs.Internal, exitFatalRuntime},
	}
	for _, tt := range tests {
		err := errs.New("test", tt.kind, "", errors.New("boom"))
		if got := exitCodeFor(err); got != tt.want {
			t.Errorf("%s -> %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	f, err := parseFlags([]string{"-u", "http://localhost:9000", "-q", "250"})
	if err != nil {
		t.Fatal(err)
	}
	if f.url != "http://localhost:9000" || f.rate != 250 {
		t.Errorf("flags = %+v", f)
	}
	if f.protocol != "http" {
		t.Errorf("protocol default = %s", f.protocol)
	}
	if !f.showSummary {
		t.Error("summary should default on")
	}
}
