package retention

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Lythaeon/strest/internal/events"
)

// ArtifactStore is the view of on-disk run artifacts (chart folders under
// the charts tree) the cleanup Manager needs.
type ArtifactStore interface {
	BaseDir() string
	DeleteArtifacts(runID string) error
}

// RunRetentionInfo carries the metadata a retention decision needs for one
// finished run.
type RunRetentionInfo struct {
	RunID     string
	EndTimeMs int64
}

// RawLogStore is the view of persisted raw shard logs and snapshots the
// cleanup Manager needs.
type RawLogStore interface {
	ListRunsForRetention() []RunRetentionInfo
	DeleteRun(runID string)
}

// Manager ages out old run folders under the strest home directory: chart
// folders past ArtifactsTTLHours and raw shard logs/snapshots past
// LogsTTLHours, swept every CleanupIntervalHours.
type Manager struct {
	config    Config
	artifacts ArtifactStore
	rawLogs   RawLogStore
	stopCh    chan struct{}
	stoppedCh chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewManager creates a cleanup Manager over the given stores.
func NewManager(config Config, artifacts ArtifactStore, rawLogs RawLogStore) *Manager {
	return &Manager{
		config:    config.WithDefaults(),
		artifacts: artifacts,
		rawLogs:   rawLogs,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins the background sweep goroutine. Starting an already-running
// manager is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	go m.run()
}

// Stop signals the sweep goroutine to stop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	<-m.stoppedCh
}

func (m *Manager) run() {
	defer close(m.stoppedCh)

	ticker := time.NewTicker(time.Duration(m.config.CleanupIntervalHours) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) sweep() {
	el := events.GetGlobalEventLogger()

	if n := m.sweepArtifacts(); n > 0 {
		el.LogRetentionCleanup(n, m.config.ArtifactsTTLHours)
	}
	if n := m.sweepRawLogs(); n > 0 {
		el.LogRetentionCleanup(n, m.config.LogsTTLHours)
	}
}

// sweepArtifacts deletes chart folders whose newest file is older than the
// artifact TTL. Age is judged from file mtimes, so folders from runs that
// predate this process are still swept.
func (m *Manager) sweepArtifacts() int {
	if m.artifacts == nil {
		return 0
	}
	baseDir := m.artifacts.BaseDir()
	if baseDir == "" {
		return 0
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return 0
	}

	ttl := time.Duration(m.config.ArtifactsTTLHours) * time.Hour
	now := time.Now()
	deleted := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runID := entry.Name()
		newest, err := newestModTime(filepath.Join(baseDir, runID))
		if err != nil {
			continue
		}
		if now.Sub(newest) > ttl {
			if err := m.artifacts.DeleteArtifacts(runID); err != nil {
				continue
			}
			deleted++
		}
	}
	return deleted
}

func (m *Manager) sweepRawLogs() int {
	if m.rawLogs == nil {
		return 0
	}

	ttlMs := int64(m.config.LogsTTLHours) * 60 * 60 * 1000
	nowMs := time.Now().UnixMilli()
	deleted := 0

	for _, run := range m.rawLogs.ListRunsForRetention() {
		if run.EndTimeMs == 0 {
			// Still running, or end time unknown; never sweep.
			continue
		}
		if nowMs-run.EndTimeMs > ttlMs {
			m.rawLogs.DeleteRun(run.RunID)
			deleted++
		}
	}
	return deleted
}

// newestModTime walks dir and returns the latest mtime found, so a folder
// still being appended to is never judged stale by its own creation time.
func newestModTime(dir string) (time.Time, error) {
	var newest time.Time
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return newest, nil
}

// SweepNow triggers an immediate sweep, bypassing the interval ticker.
func (m *Manager) SweepNow() {
	m.sweep()
}
