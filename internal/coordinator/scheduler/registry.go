package scheduler

import (
	"sync"
	"time"

	"github.com/Lythaeon/strest/internal/coordinator/wire"
)

// ConnectionState is an agent's position in its lifecycle:
// Joining -> Ready -> Running -> Reporting, with Lost reachable from
// any state on heartbeat timeout and a standby path back to Ready on
// reconnect.
type ConnectionState string

const (
	StateJoining   ConnectionState = "joining"
	StateReady     ConnectionState = "ready"
	StateRunning   ConnectionState = "running"
	StateReporting ConnectionState = "reporting"
	StateLost      ConnectionState = "lost"
)

// AgentRecord is the controller's view of one agent.
type AgentRecord struct {
	ID               string
	Weight           float64
	LastHeartbeatAt  time.Time
	ConnectionState  ConnectionState
	LastSummaryFrame []byte // opaque JSON SummaryFrame, decoded lazily by callers

	conn AgentConn
}

// AgentConn is the minimal surface the registry needs to push frames back to
// an agent (e.g. RunConfig, Stop); satisfied by the controller's per-
// connection writer.
type AgentConn interface {
	Send(typ wire.FrameType, payload any) error
}

// Registry tracks every agent that has ever said hello to this controller.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*AgentRecord
}

// NewRegistry builds an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*AgentRecord)}
}

// Join registers (or re-registers, for a standby reconnect) an agent as
// Ready.
func (r *Registry) Join(id string, weight float64, conn AgentConn) *AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &AgentRecord{
		ID:              id,
		Weight:          weight,
		LastHeartbeatAt: time.Now(),
		ConnectionState: StateReady,
		conn:            conn,
	}
	r.agents[id] = rec
	return rec
}

// Touch records a heartbeat for id, reviving it from Lost to Ready if it had
// timed out and reconnected (standby reconnect).
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[id]; ok {
		rec.LastHeartbeatAt = time.Now()
		if rec.ConnectionState == StateLost {
			rec.ConnectionState = StateReady
		}
	}
}

// SetState transitions id to state.
func (r *Registry) SetState(id string, state ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[id]; ok {
		rec.ConnectionState = state
	}
}

// RecordSummary stores the latest SummaryFrame JSON reported by id.
func (r *Registry) RecordSummary(id string, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[id]; ok {
		rec.LastSummaryFrame = frame
	}
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (AgentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[id]
	if !ok {
		return AgentRecord{}, false
	}
	return *rec, true
}

// List returns a snapshot of every known agent.
func (r *Registry) List() []AgentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentRecord, 0, len(r.agents))
	for _, rec := range r.agents {
		out = append(out, *rec)
	}
	return out
}

// CountInState returns how many agents currently sit in state.
func (r *Registry) CountInState(state ConnectionState) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.agents {
		if rec.ConnectionState == state {
			n++
		}
	}
	return n
}

// ConnFor returns the live connection handle for id, used by the controller
// to push RunConfig and Stop frames.
func (r *Registry) ConnFor(id string) (AgentConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[id]
	if !ok || rec.conn == nil {
		return nil, false
	}
	return rec.conn, true
}
