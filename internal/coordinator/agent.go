package coordinator

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/Lythaeon/strest/internal/coordinator/scheduler"
	"github.com/Lythaeon/strest/internal/coordinator/wire"
	"github.com/Lythaeon/strest/internal/errs"
)

// AgentClient is the agent-side half of the wire protocol: it dials a controller, completes the hello/auth handshake, then
// exchanges heartbeats, RunConfig assignments, and SummaryFrame/ReportFinal
// updates until the connection closes.
type AgentClient struct {
	id     string
	weight float64
	token  string

	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex

	heartbeatInterval time.Duration
	ackRunID          string
	clockOffsetMs     int64

	runConfigs chan wire.RunConfigFrame
	stops      chan wire.StopFrame
}

// NewAgentClient builds an unconnected client for agent id.
func NewAgentClient(id string, weight float64, token string) *AgentClient {
	return &AgentClient{
		id:         id,
		weight:     weight,
		token:      token,
		runConfigs: make(chan wire.RunConfigFrame, 4),
		stops:      make(chan wire.StopFrame, 4),
	}
}

// Dial connects to the controller at addr and completes the hello
// handshake, returning an error (DistributedHandshake or DistributedProtocol)
// if the controller rejects the token/ABI version or the connection fails.
func (a *AgentClient) Dial(ctx context.Context, addr string, hostInfo map[string]string) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errs.New("AgentClient.Dial", errs.DistributedHandshake, addr, err)
	}
	a.conn = conn
	a.r = bufio.NewReader(conn)

	if err := a.send(wire.FrameAgentHello, wire.AgentHello{
		AgentID:      a.id,
		Weight:       a.weight,
		ABIVersion:   wire.CurrentABIVersion,
		Token:        a.token,
		SentAtUnixMs: time.Now().UnixMilli(),
		HostInfo:     hostInfo,
	}); err != nil {
		conn.Close()
		return err
	}

	typ, payload, err := wire.ReadFrame(a.r)
	if err != nil {
		conn.Close()
		return errs.New("AgentClient.Dial", errs.DistributedHandshake, addr, err)
	}
	if typ == wire.FrameAuthReject {
		var rej wire.AuthReject
		_ = wire.Decode(payload, &rej)
		conn.Close()
		return errs.New("AgentClient.Dial", errs.DistributedHandshake, addr, rejectErr(rej.Reason))
	}
	var ack wire.HelloAck
	if err := wire.Decode(payload, &ack); err != nil {
		conn.Close()
		return err
	}
	a.heartbeatInterval = time.Duration(ack.HeartbeatIntervalMs) * time.Millisecond
	if a.heartbeatInterval <= 0 {
		a.heartbeatInterval = scheduler.DefaultHeartbeatTimeout / 3
	}
	a.ackRunID = ack.RunID
	a.clockOffsetMs = ack.ClockOffsetMs
	return nil
}

// AckRunID reports the run the controller had in progress at handshake
// time (empty when idle). On a standby reconnect the matching
// RunConfigFrame arrives on RunConfigs() right after the ack.
func (a *AgentClient) AckRunID() string { return a.ackRunID }

// ClockOffsetMs is the controller-reported clock delta (controller minus
// agent) measured at handshake.
func (a *AgentClient) ClockOffsetMs() int64 { return a.clockOffsetMs }

// Run drives the client's receive loop and heartbeat ticker until ctx is
// cancelled or the connection errors. RunConfig frames and Stop frames
// arrive on RunConfigs()/Stops(); call SendSummary/SendFinal from the
// caller's own aggregation loop.
func (a *AgentClient) Run(ctx context.Context) error {
	go a.heartbeatLoop(ctx)

	for {
		typ, payload, err := wire.ReadFrame(a.r)
		if err != nil {
			return errs.New("AgentClient.Run", errs.DistributedProtocol, a.id, err)
		}
		switch typ {
		case wire.FrameRunConfig:
			var rc wire.RunConfigFrame
			if wire.Decode(payload, &rc) == nil {
				select {
				case a.runConfigs <- rc:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case wire.FrameStop:
			var st wire.StopFrame
			if wire.Decode(payload, &st) == nil {
				select {
				case a.stops <- st:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// RunConfigs streams RunConfig assignments pushed by the controller.
func (a *AgentClient) RunConfigs() <-chan wire.RunConfigFrame { return a.runConfigs }

// Stops streams Stop signals pushed by the controller.
func (a *AgentClient) Stops() <-chan wire.StopFrame { return a.stops }

func (a *AgentClient) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = a.send(wire.FrameHeartbeat, wire.Heartbeat{AgentID: a.id, SentAtUnixMs: time.Now().UnixMilli()})
		}
	}
}

// SendSummary reports a periodic SummaryFrame snapshot, already JSON-
// encoded by the caller's metrics package.
func (a *AgentClient) SendSummary(runID string, frame json.RawMessage) error {
	return a.send(wire.FrameSummary, wire.SummaryFrameMsg{AgentID: a.id, RunID: runID, Frame: frame})
}

// SendFinal reports the terminal report once the local run reaches
// StateFinalized.
func (a *AgentClient) SendFinal(runID string, frame json.RawMessage, shardPaths []string) error {
	return a.send(wire.FrameReportFinal, wire.ReportFinal{AgentID: a.id, RunID: runID, Frame: frame, ShardPaths: shardPaths})
}

func (a *AgentClient) send(typ wire.FrameType, payload any) error {
	a.wmu.Lock()
	defer a.wmu.Unlock()
	return wire.WriteFrame(a.conn, typ, payload)
}

// Close closes the underlying connection.
func (a *AgentClient) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}

type rejectErr string

func (e rejectErr) Error() string { return string(e) }
