package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Lythaeon/strest/internal/errs"
)

// WebSocketAdapter drives request/response style load over one websocket
// connection per worker: each attempt writes the step's body as a text
// message and reads one message back. Servers that push unsolicited
// messages will have them consumed as responses; this adapter models an
// echo/RPC-style target, not a free-running stream.
type WebSocketAdapter struct{}

func (a *WebSocketAdapter) ID() string { return "websocket" }

// AcceptsLoadMode: a persistent connection paces fine under every mode.
func (a *WebSocketAdapter) AcceptsLoadMode(mode LoadMode) bool {
	switch mode {
	case LoadModeArrival, LoadModeRamp, LoadModeConcurrency, LoadModeProbe:
		return true
	}
	return false
}

// Connect dials cfg.Endpoint (a ws:// or wss:// URL) and completes the
// upgrade handshake. Failure here is an unrecoverable setup error.
func (a *WebSocketAdapter) Connect(ctx context.Context, cfg *Config) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.Timeouts.ConnectTimeout,
	}
	if cfg.TLS.SkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := http.Header{}
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.Endpoint, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, errs.New("transport.Connect", errs.TransportSetup, cfg.Endpoint, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	return &wsConn{conn: conn, timeout: cfg.Timeouts.RequestTimeout}, nil
}

// wsConn serializes attempts over its single underlying connection: the
// gorilla connection allows one concurrent reader and one writer, and a
// request/response exchange needs both in order.
type wsConn struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (c *wsConn) Send(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, req.Body); err != nil {
		return wsFailure(req.URL, err), nil
	}

	_ = c.conn.SetReadDeadline(deadline)
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return wsFailure(req.URL, err), nil
	}

	// A completed exchange reports 200 so the default expected-status
	// policy and scenario assertions apply to the message body unchanged.
	return &Response{
		Status:        http.StatusOK,
		Body:          msg,
		ResponseBytes: int64(len(msg)),
	}, nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

func wsFailure(url string, err error) *Response {
	netErr := MapError(err)
	return &Response{
		Err:      errs.New("transport.Send", errs.TransportRuntime, url, netErr),
		TimedOut: netErr.IsTimeout,
	}
}

func init() {
	DefaultRegistry.MustRegister(&WebSocketAdapter{})
}
