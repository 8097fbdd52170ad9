// Package retention bounds what strest keeps: the in-memory chart-visible
// outcome reservoir, and the on-disk run folders (charts, raw shard logs,
// snapshots) aged out by the cleanup Manager.
package retention

// Config holds on-disk retention policy.
type Config struct {
	// ArtifactsTTLHours is the time-to-live for per-run chart folders in
	// hours. Folders older than this are deleted during cleanup.
	// Default: 168 (7 days)
	ArtifactsTTLHours int

	// LogsTTLHours is the time-to-live for raw shard logs and snapshots in
	// hours. Default: 168 (7 days)
	LogsTTLHours int

	// CleanupIntervalHours is the interval between sweeps in hours.
	// Default: 24 (once per day)
	CleanupIntervalHours int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ArtifactsTTLHours:    168,
		LogsTTLHours:         168,
		CleanupIntervalHours: 24,
	}
}

// WithDefaults returns a copy of the config with zero values replaced by
// defaults.
func (c Config) WithDefaults() Config {
	result := c
	if result.ArtifactsTTLHours <= 0 {
		result.ArtifactsTTLHours = 168
	}
	if result.LogsTTLHours <= 0 {
		result.LogsTTLHours = 168
	}
	if result.CleanupIntervalHours <= 0 {
		result.CleanupIntervalHours = 24
	}
	return result
}
