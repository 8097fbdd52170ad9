package retention

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// RunDirStore implements ArtifactStore and RawLogStore against the on-disk
// run layout: ~/.strest/{charts,tmp,snapshots} on POSIX,
// %USERPROFILE%\.strest\... on Windows, with per-run folders
// named run-YYYY-MM-DD_HH-MM-SS_<HOST-PORT>. A run's "end time" for
// raw-log retention purposes is the one passed to RecordRunEnd or, for a
// run folder found on disk without one, its charts folder's mtime.
type RunDirStore struct {
	root string // e.g. ~/.strest

	mu   sync.Mutex
	ends map[string]int64 // runID -> end-time unix ms, recorded by RecordRunEnd
}

// DefaultRoot resolves the strest home directory for the current
// OS: ~/.strest on POSIX, %USERPROFILE%\.strest on Windows.
func DefaultRoot() string {
	if runtime.GOOS == "windows" {
		if home := os.Getenv("USERPROFILE"); home != "" {
			return filepath.Join(home, ".strest")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".strest")
}

// NewRunDirStore builds a store rooted at root (use DefaultRoot() outside
// of tests).
func NewRunDirStore(root string) *RunDirStore {
	return &RunDirStore{root: root, ends: make(map[string]int64)}
}

// BaseDir is the "charts" tree: one subdirectory per run, which is what the
// retention Manager walks for artifact-TTL cleanup.
func (s *RunDirStore) BaseDir() string { return filepath.Join(s.root, "charts") }

// TmpDir is where raw shard logs and in-progress snapshot state for run
// runID live while a run is active.
func (s *RunDirStore) TmpDir(runID string) string { return filepath.Join(s.root, "tmp", runID) }

// SnapshotsDir is where replay/compare snapshots for run runID are written.
func (s *RunDirStore) SnapshotsDir(runID string) string {
	return filepath.Join(s.root, "snapshots", runID)
}

// DeleteArtifacts removes every directory strest wrote for runID: its
// chart folder, its raw tmp shards, and any exported snapshots.
func (s *RunDirStore) DeleteArtifacts(runID string) error {
	var firstErr error
	for _, dir := range []string{
		filepath.Join(s.BaseDir(), runID),
		s.TmpDir(runID),
		s.SnapshotsDir(runID),
	} {
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.mu.Lock()
	delete(s.ends, runID)
	s.mu.Unlock()
	return firstErr
}

// RecordRunEnd marks runID as finalized at endTimeMs, so ListRunsForRetention
// can age it out once LogsTTLHours elapses.
func (s *RunDirStore) RecordRunEnd(runID string, endTimeMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends[runID] = endTimeMs
}

// ListRunsForRetention reports every run this process has recorded the end
// of, plus every run-* folder in the charts tree not already recorded, aged
// by that folder's mtime (covers runs from a prior process whose in-memory
// end time was lost on restart).
func (s *RunDirStore) ListRunsForRetention() []RunRetentionInfo {
	s.mu.Lock()
	out := make([]RunRetentionInfo, 0, len(s.ends))
	seen := make(map[string]bool, len(s.ends))
	for id, end := range s.ends {
		out = append(out, RunRetentionInfo{RunID: id, EndTimeMs: end})
		seen[id] = true
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.BaseDir())
	if err != nil {
		sortRunInfos(out)
		return out
	}
	for _, e := range entries {
		if !e.IsDir() || seen[e.Name()] || !strings.HasPrefix(e.Name(), "run-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, RunRetentionInfo{RunID: e.Name(), EndTimeMs: info.ModTime().UnixMilli()})
	}
	sortRunInfos(out)
	return out
}

// DeleteRun is RawLogStore's half of run teardown; it delegates to
// DeleteArtifacts since raw logs live under the same per-run trees.
func (s *RunDirStore) DeleteRun(runID string) {
	_ = s.DeleteArtifacts(runID)
}

func sortRunInfos(infos []RunRetentionInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].RunID < infos[j].RunID })
}
