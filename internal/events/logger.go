// Package events provides structured JSON event logging for the load
// generator: run lifecycle transitions, load-profile stage changes, agent
// membership churn, and metrics-pipeline degradation events.
package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger provides structured logging for key events in strest.
type EventLogger struct {
	logger *slog.Logger
	runID  string
}

// NewEventLogger creates a new EventLogger with JSON output to stderr
// (stdout is reserved for summary output). It includes run_id as a base
// attribute on every record.
func NewEventLogger(runID string) *EventLogger {
	return NewEventLoggerWithWriter(runID, os.Stderr)
}

// NewEventLoggerWithWriter creates a new EventLogger with JSON output to a
// custom writer. Useful for testing or redirecting output.
func NewEventLoggerWithWriter(runID string, w io.Writer) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler).With(
		"run_id", runID,
	)
	return &EventLogger{
		logger: logger,
		runID:  runID,
	}
}

// LogRunStateChange logs an engine lifecycle transition.
// event: "run_state_change"
// Attributes: from, to
func (el *EventLogger) LogRunStateChange(from, to string) {
	el.logger.Info("run_state_change",
		"from", from,
		"to", to,
	)
}

// LogStageTransition logs a transition between load-profile stages.
// event: "stage_transition"
// Attributes: stage_index, target_rps, elapsed_ms
func (el *EventLogger) LogStageTransition(stageIndex int, targetRPS float64, elapsedMs int64) {
	el.logger.Info("stage_transition",
		"stage_index", stageIndex,
		"target_rps", targetRPS,
		"elapsed_ms", elapsedMs,
	)
}

// LogAgentJoined logs a successful agent handshake on the controller.
// event: "agent_joined"
// Attributes: agent_id, weight
func (el *EventLogger) LogAgentJoined(agentID string, weight float64) {
	el.logger.Info("agent_joined",
		"agent_id", agentID,
		"weight", weight,
	)
}

// LogAgentLost logs an agent exceeding its heartbeat timeout.
// event: "agent_lost"
// Attributes: agent_id, silent_ms
func (el *EventLogger) LogAgentLost(agentID string, silentMs int64) {
	el.logger.Warn("agent_lost",
		"agent_id", agentID,
		"silent_ms", silentMs,
	)
}

// LogAgentReconnect logs an agent's reconnect attempt in standby mode.
// event: "agent_reconnect"
// Attributes: agent_id, attempt, backoff_ms
func (el *EventLogger) LogAgentReconnect(agentID string, attempt int, backoffMs int64) {
	el.logger.Info("agent_reconnect",
		"agent_id", agentID,
		"attempt", attempt,
		"backoff_ms", backoffMs,
	)
}

// LogShardError logs a non-fatal raw log shard write failure.
// event: "shard_error"
// Attributes: shard_path, error
func (el *EventLogger) LogShardError(shardPath string, err error) {
	el.logger.Warn("shard_error",
		"shard_path", shardPath,
		"error", err.Error(),
	)
}

// LogBackpressureDrop logs chart-bound aggregate drops under channel
// backpressure. Histogram updates are never dropped; this only covers the
// chart series.
// event: "backpressure_drop"
// Attributes: dropped
func (el *EventLogger) LogBackpressureDrop(dropped int64) {
	el.logger.Warn("backpressure_drop",
		"dropped", dropped,
	)
}

// LogRetentionCleanup logs a completed retention sweep.
// event: "retention_cleanup"
// Attributes: runs_deleted, ttl_hours
func (el *EventLogger) LogRetentionCleanup(runsDeleted int, ttlHours int) {
	el.logger.Info("retention_cleanup",
		"runs_deleted", runsDeleted,
		"ttl_hours", ttlHours,
	)
}

// LogSinkError logs a failed sink write; sinks are retried on the next
// tick, never fatal.
// event: "sink_error"
// Attributes: sink, error
func (el *EventLogger) LogSinkError(sink string, err error) {
	el.logger.Warn("sink_error",
		"sink", sink,
		"error", err.Error(),
	)
}

// Global logger management
var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex

	noopOnce   sync.Once
	noopLogger *EventLogger
)

// SetGlobalEventLogger sets the global event logger instance.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the global event logger instance.
// If no logger is set, returns a no-op logger.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns an event logger that discards all events.
// Useful for testing or when event logging is disabled.
func NoopEventLogger() *EventLogger {
	noopOnce.Do(func() {
		handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
		noopLogger = &EventLogger{logger: slog.New(handler)}
	})
	return noopLogger
}
