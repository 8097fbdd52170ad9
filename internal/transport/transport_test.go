package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestHTTPConfig(endpoint string) *Config {
	return &Config{
		Endpoint: endpoint,
		Timeouts: TimeoutConfig{ConnectTimeout: time.Second, RequestTimeout: 2 * time.Second},
		// httptest servers listen on loopback, which the safe dialer
		// refuses unless allow-listed.
		AllowPrivateNetworks: []string{"127.0.0.0/8"},
	}
}

func TestHTTPAdapterSendOk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	a := &HTTPAdapter{}
	conn, err := a.Connect(context.Background(), newTestHTTPConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	resp, err := conn.Send(context.Background(), &Request{Method: "GET", URL: srv.URL})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Err != nil {
		t.Fatalf("unexpected transport error: %v", resp.Err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if resp.ResponseBytes == 0 {
		t.Fatalf("expected response bytes recorded")
	}
}

func TestHTTPAdapterClassifiesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := &HTTPAdapter{}
	cfg := newTestHTTPConfig(srv.URL)
	cfg.Timeouts.RequestTimeout = 10 * time.Millisecond
	conn, err := a.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	resp, _ := conn.Send(context.Background(), &Request{Method: "GET", URL: srv.URL})
	if resp.Err == nil {
		t.Fatalf("expected a transport error")
	}
	if !resp.TimedOut {
		t.Fatalf("expected TimedOut = true")
	}
	if ClassifyError(resp) != 2 { // OutcomeTimeout
		t.Fatalf("ClassifyError = %v, want OutcomeTimeout", ClassifyError(resp))
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&HTTPAdapter{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&HTTPAdapter{}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestStubAdapterSetupFails(t *testing.T) {
	a, ok := DefaultRegistry.Get("quic")
	if !ok {
		t.Fatalf("expected quic stub to be registered")
	}
	if _, err := a.Connect(context.Background(), &Config{}); err == nil {
		t.Fatalf("expected stub adapter Connect to fail")
	}
}

func startEchoWebSocketServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocketAdapterEcho(t *testing.T) {
	srv := startEchoWebSocketServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	a := &WebSocketAdapter{}
	conn, err := a.Connect(context.Background(), &Config{
		Endpoint: wsURL,
		Timeouts: TimeoutConfig{ConnectTimeout: time.Second, RequestTimeout: 2 * time.Second},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	resp, err := conn.Send(context.Background(), &Request{URL: wsURL, Body: []byte(`{"ping":1}`)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Err != nil {
		t.Fatalf("attempt failed: %v", resp.Err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("Status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != `{"ping":1}` {
		t.Fatalf("Body = %q", resp.Body)
	}
	if resp.ResponseBytes != int64(len(resp.Body)) {
		t.Fatalf("ResponseBytes = %d", resp.ResponseBytes)
	}
}

func TestWebSocketAdapterReadTimeout(t *testing.T) {
	// A server that upgrades but never responds forces the read deadline.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	a := &WebSocketAdapter{}
	conn, err := a.Connect(context.Background(), &Config{
		Endpoint: wsURL,
		Timeouts: TimeoutConfig{ConnectTimeout: time.Second, RequestTimeout: 150 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	resp, err := conn.Send(context.Background(), &Request{URL: wsURL, Body: []byte("hello")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Err == nil {
		t.Fatal("expected a timeout failure")
	}
	if !resp.TimedOut {
		t.Fatal("expected TimedOut = true")
	}
}

func TestWebSocketAdapterConnectFailure(t *testing.T) {
	a := &WebSocketAdapter{}
	_, err := a.Connect(context.Background(), &Config{
		Endpoint: "ws://127.0.0.1:1/nope",
		Timeouts: TimeoutConfig{ConnectTimeout: 200 * time.Millisecond, RequestTimeout: time.Second},
	})
	if err == nil {
		t.Fatal("expected setup failure for an unreachable endpoint")
	}
}
