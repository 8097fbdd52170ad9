package mockserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"
)

func startServer(t *testing.T) Server {
	t.Helper()
	server, cleanup := StartTestServer()
	t.Cleanup(cleanup)
	return server
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func TestHealthEndpoint(t *testing.T) {
	server := startServer(t)

	resp, body := get(t, server.BaseURL()+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["ok"] != true {
		t.Errorf("body = %s", body)
	}
}

func TestEchoReflectsMessage(t *testing.T) {
	server := startServer(t)

	resp, body := get(t, server.BaseURL()+"/echo?message=ping")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["echo"] != "ping" {
		t.Errorf("echo = %v", payload["echo"])
	}
}

func TestErrorEndpointHonorsStatusQuery(t *testing.T) {
	server := startServer(t)

	resp, _ := get(t, server.BaseURL()+"/error?status=503")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}

	// Out-of-range values fall back to 500.
	resp, _ = get(t, server.BaseURL()+"/error?status=200")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestTimeoutEndpointBlocksUntilClientGivesUp(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.BaseURL()+"/timeout", nil)

	_, err := http.DefaultClient.Do(req)
	if err == nil {
		t.Fatal("expected the client deadline to fire")
	}
}

func TestDegradingLatencyGrows(t *testing.T) {
	server := startServer(t)

	firstStart := time.Now()
	get(t, server.BaseURL()+"/degrading")
	first := time.Since(firstStart)

	for i := 0; i < 3; i++ {
		get(t, server.BaseURL()+"/degrading")
	}

	lastStart := time.Now()
	get(t, server.BaseURL()+"/degrading")
	last := time.Since(lastStart)

	if last <= first {
		t.Errorf("latency did not degrade: first %v, last %v", first, last)
	}
}

func TestEvalExpression_DivisionByZeroReturnsError(t *testing.T) {
	_, err := evalExpression("1/0")
	if err == nil {
		t.Fatal("expected division by zero error")
	}
}
