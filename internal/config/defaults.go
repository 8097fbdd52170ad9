package config

// Default configuration constants for event logging, metrics channels, and
// distributed coordination.
const (
	DefaultEventBufferSize   = 10000
	DefaultChannelBufferSize = 10000

	// DefaultOutcomeChannelCapacity is the bounded multi-producer channel
	// capacity the aggregator reads from.
	DefaultOutcomeChannelCapacity = 65536
	// DefaultHighWaterMarkPct is the fraction of channel capacity in use
	// above which sampling begins dropping chart-bound aggregates.
	DefaultHighWaterMarkPct = 0.8

	DefaultShardCount = 8

	DefaultUIWindowMs     = 1000
	DefaultSinkIntervalMs = 1000

	DefaultHeartbeatIntervalMs = 1000
	DefaultHeartbeatTimeoutMs  = 3000
	DefaultStreamIntervalMs    = 1000
	DefaultAgentReconnectMs    = 2000
	DefaultAgentWaitTimeoutMs  = 10000

	MaxFrameBytes = 4 * 1024 * 1024
	AbiVersion    = 1

	MaxScenarioBytes = 1 * 1024 * 1024
)
