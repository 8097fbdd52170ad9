// Package coordinator implements the distributed control plane: it wires
// wire.Frame exchange, scheduler.Registry/HeartbeatMonitor, and weighted
// partitioning into a Controller/AgentClient pair plus a manual
// bearer-authenticated HTTP control surface.
package coordinator

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	coordauth "github.com/Lythaeon/strest/internal/coordinator/auth"
	"github.com/Lythaeon/strest/internal/coordinator/scheduler"
	"github.com/Lythaeon/strest/internal/coordinator/wire"
	"github.com/Lythaeon/strest/internal/errs"
	"github.com/Lythaeon/strest/internal/events"
)

// connWriter adapts a net.Conn into the scheduler.AgentConn interface the
// registry uses to push frames back to a specific agent, serializing writes
// since the heartbeat sweep and the run dispatcher may both write
// concurrently.
type connWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (c *connWriter) Send(typ wire.FrameType, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.WriteFrame(c.conn, typ, payload)
}

// Controller is the distributed-mode coordinator: it accepts agent
// connections, authenticates them, tracks their lifecycle via
// scheduler.Registry/HeartbeatMonitor, partitions runs across them, and
// streams their Summary Frames and final reports to its consumers.
type Controller struct {
	id      string
	checker *coordauth.BearerChecker

	Registry  *scheduler.Registry
	heartbeat *scheduler.HeartbeatMonitor

	listener net.Listener

	summaries chan wire.SummaryFrameMsg
	finals    chan wire.ReportFinal

	// runMu guards the currently-dispatched run: its id and the per-agent
	// config slices, kept so a reconnecting agent can be handed its own
	// slice again mid-run.
	runMu         sync.Mutex
	activeRunID   string
	activeConfigs map[string]json.RawMessage

	closeOnce sync.Once
}

// NewController builds a controller identified by id, requiring token on
// every agent handshake.
func NewController(id, token string) *Controller {
	c := &Controller{
		id:        id,
		checker:   coordauth.NewBearerChecker(token),
		Registry:  scheduler.NewRegistry(),
		summaries: make(chan wire.SummaryFrameMsg, 256),
		finals:    make(chan wire.ReportFinal, 64),
	}
	c.heartbeat = scheduler.NewHeartbeatMonitor(c.Registry, 0, 0, func(agentID string) {
		events.GetGlobalEventLogger().LogAgentLost(agentID, scheduler.DefaultHeartbeatTimeout.Milliseconds())
	})
	return c
}

// Summaries streams every SummaryFrame reported by any agent.
func (c *Controller) Summaries() <-chan wire.SummaryFrameMsg { return c.summaries }

// Finals streams every agent's terminal ReportFinal.
func (c *Controller) Finals() <-chan wire.ReportFinal { return c.finals }

// Start listens on addr and accepts agent connections until ctx is
// cancelled or Close is called.
func (c *Controller) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errs.New("Controller.Start", errs.DistributedHandshake, addr, err)
	}
	c.listener = ln
	c.heartbeat.Start()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go c.handleConn(ctx, conn)
		}
	}()
	return nil
}

// Close stops accepting connections and the heartbeat monitor.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.heartbeat.Stop()
		if c.listener != nil {
			err = c.listener.Close()
		}
	})
	return err
}

func (c *Controller) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	typ, payload, err := wire.ReadFrame(r)
	if err != nil || typ != wire.FrameAgentHello {
		_ = wire.WriteFrame(conn, wire.FrameAuthReject, wire.AuthReject{Reason: "expected AgentHello"})
		return
	}
	var hello wire.AgentHello
	if err := wire.Decode(payload, &hello); err != nil {
		_ = wire.WriteFrame(conn, wire.FrameAuthReject, wire.AuthReject{Reason: "malformed AgentHello"})
		return
	}
	if !c.checker.Equal(hello.Token) {
		_ = wire.WriteFrame(conn, wire.FrameAuthReject, wire.AuthReject{Reason: "invalid token"})
		return
	}
	if hello.ABIVersion != wire.CurrentABIVersion {
		_ = wire.WriteFrame(conn, wire.FrameAuthReject, wire.AuthReject{Reason: "abi version mismatch"})
		return
	}

	cw := &connWriter{conn: conn}
	c.Registry.Join(hello.AgentID, hello.Weight, cw)
	events.GetGlobalEventLogger().LogAgentJoined(hello.AgentID, hello.Weight)

	var clockOffsetMs int64
	if hello.SentAtUnixMs != 0 {
		clockOffsetMs = time.Now().UnixMilli() - hello.SentAtUnixMs
	}
	runID, slice := c.activeSliceFor(hello.AgentID)

	if err := wire.WriteFrame(conn, wire.FrameHelloAck, wire.HelloAck{
		ControllerID:        c.id,
		ABIVersion:          wire.CurrentABIVersion,
		RunID:               runID,
		ClockOffsetMs:       clockOffsetMs,
		HeartbeatIntervalMs: scheduler.DefaultHeartbeatTimeout.Milliseconds() / 3,
	}); err != nil {
		return
	}

	// A reconnect while a run is in progress resumes the same partition:
	// the agent's own slice is re-sent so the handshake is idempotent for
	// a standby rejoin.
	if runID != "" && slice != nil {
		if err := cw.Send(wire.FrameRunConfig, wire.RunConfigFrame{RunID: runID, Config: slice}); err == nil {
			c.Registry.SetState(hello.AgentID, scheduler.StateRunning)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		typ, payload, err := wire.ReadFrame(r)
		if err != nil {
			c.Registry.SetState(hello.AgentID, scheduler.StateLost)
			return
		}
		switch typ {
		case wire.FrameHeartbeat:
			var hb wire.Heartbeat
			if wire.Decode(payload, &hb) == nil {
				c.Registry.Touch(hb.AgentID)
			}
		case wire.FrameSummary:
			var msg wire.SummaryFrameMsg
			if wire.Decode(payload, &msg) == nil {
				c.Registry.RecordSummary(msg.AgentID, msg.Frame)
				select {
				case c.summaries <- msg:
				default:
				}
			}
		case wire.FrameReportFinal:
			var rep wire.ReportFinal
			if wire.Decode(payload, &rep) == nil {
				c.Registry.SetState(rep.AgentID, scheduler.StateReporting)
				c.Registry.RecordSummary(rep.AgentID, rep.Frame)
				select {
				case c.finals <- rep:
				default:
				}
			}
		}
	}
}

// WaitForAgents blocks until at least minAgents are Ready, or timeout
// elapses.
func (c *Controller) WaitForAgents(ctx context.Context, minAgents int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.Registry.CountInState(scheduler.StateReady) >= minAgents {
			return nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return errs.New("Controller.WaitForAgents", errs.DistributedHandshake, "", errWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// activeSliceFor reports the in-progress run id and this agent's config
// slice within it, both zero when no run is active or the agent has no
// assigned slice.
func (c *Controller) activeSliceFor(agentID string) (string, json.RawMessage) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.activeRunID == "" {
		return "", nil
	}
	return c.activeRunID, c.activeConfigs[agentID]
}

// DispatchRunConfig sends each agent its partitioned RunConfig JSON and
// marks it Running. The partition is retained until FinishRun or Stop so
// reconnecting agents can be re-sent their slice.
func (c *Controller) DispatchRunConfig(runID string, perAgent map[string]json.RawMessage) {
	c.runMu.Lock()
	c.activeRunID = runID
	c.activeConfigs = perAgent
	c.runMu.Unlock()

	for id, cfg := range perAgent {
		conn, ok := c.Registry.ConnFor(id)
		if !ok {
			continue
		}
		if err := conn.Send(wire.FrameRunConfig, wire.RunConfigFrame{RunID: runID, Config: cfg}); err == nil {
			c.Registry.SetState(id, scheduler.StateRunning)
		}
	}
}

// Stop broadcasts a Stop frame for runID to every registered agent that has
// a connection, whatever its state, and retires the run.
func (c *Controller) Stop(runID, reason string) {
	for _, rec := range c.Registry.List() {
		conn, ok := c.Registry.ConnFor(rec.ID)
		if !ok {
			continue
		}
		_ = conn.Send(wire.FrameStop, wire.StopFrame{RunID: runID, Reason: reason})
	}
	c.FinishRun(runID)
}

// FinishRun retires runID once its aggregation completes, so later
// handshakes no longer observe it as in progress.
func (c *Controller) FinishRun(runID string) {
	c.runMu.Lock()
	if c.activeRunID == runID {
		c.activeRunID = ""
		c.activeConfigs = nil
	}
	c.runMu.Unlock()
}

type waitTimeoutErr string

func (e waitTimeoutErr) Error() string { return string(e) }

var errWaitTimeout = waitTimeoutErr("timed out waiting for agents")
