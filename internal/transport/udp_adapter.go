package transport

import (
	"context"
	"net"

	"github.com/Lythaeon/strest/internal/errs"
)

const UDPAdapterID = "udp"

func init() {
	DefaultRegistry.MustRegister(&UDPAdapter{})
}

// UDPAdapter sends one datagram and waits for one reply datagram. Per the
// design note on datagram adapters, this is one-shot probe semantics: it
// does not retransmit or reassemble, and is best driven with LoadModeProbe
// or a bounded-concurrency (closed-loop) profile rather than a high arrival
// rate.
type UDPAdapter struct{}

func (a *UDPAdapter) ID() string { return UDPAdapterID }

func (a *UDPAdapter) AcceptsLoadMode(mode LoadMode) bool {
	return mode == LoadModeProbe || mode == LoadModeConcurrency
}

func (a *UDPAdapter) Connect(ctx context.Context, cfg *Config) (Conn, error) {
	return &udpConn{cfg: cfg}, nil
}

type udpConn struct {
	cfg *Config
}

func (c *udpConn) Close() error { return nil }

func (c *udpConn) Send(ctx context.Context, req *Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.RequestTimeout)
	defer cancel()

	dialer := net.Dialer{Timeout: c.cfg.Timeouts.ConnectTimeout}
	conn, err := dialer.DialContext(attemptCtx, "udp", req.URL)
	if err != nil {
		return &Response{Err: errs.New("transport.udp.Send", errs.TransportRuntime, req.URL, err)}, nil
	}
	defer conn.Close()

	if deadline, ok := attemptCtx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(req.Body); err != nil {
		return &Response{Err: errs.New("transport.udp.Send", errs.TransportRuntime, req.URL, err)}, nil
	}

	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return &Response{TimedOut: true, Err: errs.New("transport.udp.Send", errs.Timeout, req.URL, err)}, nil
		}
		return &Response{Err: errs.New("transport.udp.Send", errs.TransportRuntime, req.URL, err)}, nil
	}
	return &Response{Status: 1, Body: buf[:n], ResponseBytes: int64(n)}, nil
}
