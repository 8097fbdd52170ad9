package coordinator

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/Lythaeon/strest/internal/coordinator/scheduler"
	"github.com/Lythaeon/strest/internal/coordinator/wire"
)

func TestControllerHandshakeRejectsBadToken(t *testing.T) {
	ctrl := NewController("ctrl-1", "correct-token")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Close()

	addr := ctrl.listener.Addr().String()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, wire.FrameAgentHello, wire.AgentHello{
		AgentID: "agent-x", Weight: 1, ABIVersion: wire.CurrentABIVersion, Token: "wrong-token",
	}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, payload, err := wire.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != wire.FrameAuthReject {
		t.Fatalf("expected AuthReject, got %v", typ)
	}
	var rej wire.AuthReject
	_ = wire.Decode(payload, &rej)
	if rej.Reason == "" {
		t.Fatal("expected a reject reason")
	}
}

func TestControllerHandshakeAcceptsGoodToken(t *testing.T) {
	ctrl := NewController("ctrl-2", "good-token")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Close()

	addr := ctrl.listener.Addr().String()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, wire.FrameAgentHello, wire.AgentHello{
		AgentID: "agent-y", Weight: 1, ABIVersion: wire.CurrentABIVersion, Token: "good-token",
	}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, payload, err := wire.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != wire.FrameHelloAck {
		t.Fatalf("expected HelloAck, got %v", typ)
	}
	var ack wire.HelloAck
	_ = wire.Decode(payload, &ack)
	if ack.ControllerID != "ctrl-2" {
		t.Fatalf("unexpected controller id: %+v", ack)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ctrl.Registry.CountInState(scheduler.StateReady) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected agent to be registered as Ready")
}

func TestAgentClientDialAndHandshake(t *testing.T) {
	ctrl := NewController("ctrl-3", "shared-token")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Close()

	client := NewAgentClient("agent-z", 1.5, "shared-token")
	if err := client.Dial(ctx, ctrl.listener.Addr().String(), nil); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if rec, ok := ctrl.Registry.Get("agent-z"); ok && rec.Weight == 1.5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected controller to register agent-z with its weight")
}

func handshake(t *testing.T, addr, agentID, token string) (net.Conn, *bufio.Reader, wire.HelloAck) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := wire.WriteFrame(conn, wire.FrameAgentHello, wire.AgentHello{
		AgentID: agentID, Weight: 1, ABIVersion: wire.CurrentABIVersion,
		Token: token, SentAtUnixMs: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	r := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, payload, err := wire.ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != wire.FrameHelloAck {
		t.Fatalf("expected HelloAck, got %v", typ)
	}
	var ack wire.HelloAck
	if err := wire.Decode(payload, &ack); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return conn, r, ack
}

func TestReconnectDuringRunResendsSameSlice(t *testing.T) {
	ctrl := NewController("ctrl-4", "tok")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Close()
	addr := ctrl.listener.Addr().String()

	first, _, ack := handshake(t, addr, "agent-r", "tok")
	if ack.RunID != "" {
		t.Fatalf("idle handshake reported run %q", ack.RunID)
	}

	slice := json.RawMessage(`{"run_id":"run-77","max_tasks":4}`)
	ctrl.DispatchRunConfig("run-77", map[string]json.RawMessage{"agent-r": slice})
	first.Close()

	// Standby reconnect with the same agent id while the run is active:
	// the ack names the run and the agent's own slice follows.
	second, r, ack2 := handshake(t, addr, "agent-r", "tok")
	defer second.Close()
	if ack2.RunID != "run-77" {
		t.Fatalf("reconnect ack run = %q, want run-77", ack2.RunID)
	}

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, payload, err := wire.ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != wire.FrameRunConfig {
		t.Fatalf("expected RunConfig after reconnect ack, got %v", typ)
	}
	var rc wire.RunConfigFrame
	if err := wire.Decode(payload, &rc); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rc.RunID != "run-77" || string(rc.Config) != string(slice) {
		t.Fatalf("reconnect slice mismatch: %+v", rc)
	}

	// A second agent with no assigned slice joins mid-run: it sees the run
	// id but gets no config frame (nothing else arrives before deadline).
	third, r3, ack3 := handshake(t, addr, "agent-new", "tok")
	defer third.Close()
	if ack3.RunID != "run-77" {
		t.Fatalf("new agent ack run = %q, want run-77", ack3.RunID)
	}
	third.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if typ, _, err := wire.ReadFrame(r3); err == nil {
		t.Fatalf("unassigned agent received unexpected %v frame", typ)
	}

	// After the run retires, a reconnect is a plain idle handshake again.
	ctrl.FinishRun("run-77")
	fourth, _, ack4 := handshake(t, addr, "agent-r", "tok")
	defer fourth.Close()
	if ack4.RunID != "" {
		t.Fatalf("post-run handshake reported run %q", ack4.RunID)
	}
}
