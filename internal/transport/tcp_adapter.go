package transport

import (
	"context"
	"io"
	"net"

	"github.com/Lythaeon/strest/internal/errs"
)

const TCPAdapterID = "tcp"

func init() {
	DefaultRegistry.MustRegister(&TCPAdapter{})
}

// TCPAdapter sends req.Body as a single write on a connection dialed fresh
// for each attempt and reads whatever the peer sends back up to the
// per-attempt deadline. It has no notion of HTTP status: any completed read
// (including EOF with no bytes) returns Response.Status 1, which the run's
// expected-status policy then classifies; a deadline is a timeout and any
// other dial, write or read error is a transport error.
type TCPAdapter struct{}

func (a *TCPAdapter) ID() string { return TCPAdapterID }

// TCP has no open-loop pacing concept of its own beyond the engine's permit
// source, so it accepts every mode the engine can drive.
func (a *TCPAdapter) AcceptsLoadMode(mode LoadMode) bool { return true }

func (a *TCPAdapter) Connect(ctx context.Context, cfg *Config) (Conn, error) {
	return &tcpConn{cfg: cfg, dialer: &net.Dialer{Timeout: cfg.Timeouts.ConnectTimeout}}, nil
}

type tcpConn struct {
	cfg    *Config
	dialer *net.Dialer
}

func (c *tcpConn) Close() error { return nil }

func (c *tcpConn) Send(ctx context.Context, req *Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.RequestTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(attemptCtx, "tcp", req.URL)
	if err != nil {
		return &Response{Err: errs.New("transport.tcp.Send", errs.TransportRuntime, req.URL, err)}, nil
	}
	defer conn.Close()

	if deadline, ok := attemptCtx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if len(req.Body) > 0 {
		if _, err := conn.Write(req.Body); err != nil {
			return &Response{Err: errs.New("transport.tcp.Send", errs.TransportRuntime, req.URL, err)}, nil
		}
	}

	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return &Response{TimedOut: true, Err: errs.New("transport.tcp.Send", errs.Timeout, req.URL, err)}, nil
		}
		return &Response{Err: errs.New("transport.tcp.Send", errs.TransportRuntime, req.URL, err)}, nil
	}
	return &Response{Status: 1, Body: buf[:n], ResponseBytes: int64(n)}, nil
}
