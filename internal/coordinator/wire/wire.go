// Package wire implements the length-prefixed TCP frame protocol exchanged
// between a controller and its agents: the AgentHello/HelloAck/AuthReject
// handshake, Heartbeat, RunConfig assignment, SummaryFrame streaming, and
// ReportFinal/Stop.
package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Lythaeon/strest/internal/errs"
)

// FrameType tags every wire message.
type FrameType uint8

const (
	FrameAgentHello FrameType = iota + 1
	FrameHelloAck
	FrameAuthReject
	FrameHeartbeat
	FrameRunConfig
	FrameSummary
	FrameReportFinal
	FrameStop
)

func (t FrameType) String() string {
	switch t {
	case FrameAgentHello:
		return "AgentHello"
	case FrameHelloAck:
		return "HelloAck"
	case FrameAuthReject:
		return "AuthReject"
	case FrameHeartbeat:
		return "Heartbeat"
	case FrameRunConfig:
		return "RunConfig"
	case FrameSummary:
		return "SummaryFrame"
	case FrameReportFinal:
		return "ReportFinal"
	case FrameStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// CurrentABIVersion is bumped whenever a wire frame's shape changes
// incompatibly; the AgentHello/HelloAck exchange rejects on mismatch.
const CurrentABIVersion = 1

// MaxFrameBytes bounds a single frame's payload, guarding the controller
// against a misbehaving or malicious agent exhausting memory on the length
// prefix alone.
const MaxFrameBytes = 4 << 20

// AgentHello is the first frame an agent sends after dialing the
// controller. SentAtUnixMs is the agent's wall clock at send time, from
// which the controller derives the clock offset it reports back.
type AgentHello struct {
	AgentID      string            `json:"agent_id"`
	Weight       float64           `json:"weight"`
	ABIVersion   int               `json:"abi_version"`
	Token        string            `json:"token"`
	SentAtUnixMs int64             `json:"sent_at_unix_ms"`
	HostInfo     map[string]string `json:"host_info,omitempty"`
}

// HelloAck is the controller's accept response to a valid AgentHello.
// RunID names the run currently in progress (empty when idle), so a
// standby reconnect during a run observes the same run id it left; a
// fresh RunConfigFrame for the agent's own slice follows the ack.
// ClockOffsetMs is controller wall time minus the hello's SentAtUnixMs,
// letting the agent align its bucket timestamps.
type HelloAck struct {
	ControllerID        string `json:"controller_id"`
	ABIVersion          int    `json:"abi_version"`
	RunID               string `json:"run_id"`
	ClockOffsetMs       int64  `json:"clock_offset_ms"`
	HeartbeatIntervalMs int64  `json:"heartbeat_interval_ms"`
}

// AuthReject is sent instead of HelloAck when the agent's token or ABI
// version is unacceptable; the controller closes the connection after.
type AuthReject struct {
	Reason string `json:"reason"`
}

// Heartbeat is sent by an agent on HeartbeatIntervalMs cadence to prove
// liveness.
type Heartbeat struct {
	AgentID      string `json:"agent_id"`
	SentAtUnixMs int64  `json:"sent_at_unix_ms"`
}

// RunConfigFrame carries this agent's share of a run: its partitioned
// RunConfig (already weight-adjusted MaxTasks/profile) as opaque JSON so the
// wire package does not import config and create a cycle.
type RunConfigFrame struct {
	RunID  string          `json:"run_id"`
	Config json.RawMessage `json:"config"`
}

// SummaryFrameMsg carries one agent's periodic SummaryFrame snapshot.
type SummaryFrameMsg struct {
	AgentID string          `json:"agent_id"`
	RunID   string          `json:"run_id"`
	Frame   json.RawMessage `json:"frame"`
}

// ReportFinal is the agent's terminal report once its local run reaches
// StateFinalized, including any raw shard log paths the controller may want
// to pull for replay.
type ReportFinal struct {
	AgentID    string          `json:"agent_id"`
	RunID      string          `json:"run_id"`
	Frame      json.RawMessage `json:"frame"`
	ShardPaths []string        `json:"shard_paths,omitempty"`
}

// StopFrame tells an agent to begin draining a run early.
type StopFrame struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason"`
}

// WriteFrame encodes typ and payload (marshaled to JSON) as
// [1-byte type][4-byte big-endian length][payload] and writes it to w.
func WriteFrame(w io.Writer, typ FrameType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errs.New("wire.WriteFrame", errs.DistributedProtocol, typ.String(), err)
	}
	if len(data) > MaxFrameBytes {
		return errs.New("wire.WriteFrame", errs.DistributedProtocol, typ.String(),
			fmt.Errorf("frame payload %d bytes exceeds max %d", len(data), MaxFrameBytes))
	}
	hdr := make([]byte, 5)
	hdr[0] = byte(typ)
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(data)))
	if _, err := w.Write(hdr); err != nil {
		return errs.New("wire.WriteFrame", errs.DistributedProtocol, typ.String(), err)
	}
	if _, err := w.Write(data); err != nil {
		return errs.New("wire.WriteFrame", errs.DistributedProtocol, typ.String(), err)
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame from r.
func ReadFrame(r *bufio.Reader) (FrameType, []byte, error) {
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	typ := FrameType(hdr[0])
	length := binary.BigEndian.Uint32(hdr[1:])
	if length > MaxFrameBytes {
		return 0, nil, errs.New("wire.ReadFrame", errs.DistributedProtocol, typ.String(),
			fmt.Errorf("frame length %d exceeds max %d", length, MaxFrameBytes))
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, errs.New("wire.ReadFrame", errs.DistributedProtocol, typ.String(), err)
	}
	return typ, payload, nil
}

// Decode unmarshals a frame payload into v.
func Decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return errs.New("wire.Decode", errs.DistributedProtocol, "", err)
	}
	return nil
}
