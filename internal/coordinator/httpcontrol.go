package coordinator

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	coordauth "github.com/Lythaeon/strest/internal/coordinator/auth"
)

// ControlPlane is the manual HTTP control surface: a small
// bearer-authenticated API distinct from the wire protocol, letting an
// operator start or stop a distributed run without a CLI attached to the
// controller process. Its token is independent of the wire protocol's
// AgentHello token.
type ControlPlane struct {
	checker    *coordauth.BearerChecker
	controller *Controller

	onStart func(ctx context.Context, body []byte) (runID string, err error)
	onStop  func(runID, reason string) error

	server   *http.Server
	listener net.Listener
}

// NewControlPlane builds a control plane fronting controller, authenticated
// with token.
func NewControlPlane(controller *Controller, token string) *ControlPlane {
	return &ControlPlane{checker: coordauth.NewBearerChecker(token), controller: controller}
}

// OnStart registers the handler invoked by POST /start; body is the raw
// JSON start request the operator submitted (scenario name, inline
// scenario, start delay, agent wait timeout).
func (cp *ControlPlane) OnStart(f func(ctx context.Context, body []byte) (runID string, err error)) {
	cp.onStart = f
}

// OnStop registers the handler invoked by POST /stop.
func (cp *ControlPlane) OnStop(f func(runID, reason string) error) {
	cp.onStop = f
}

func (cp *ControlPlane) authenticate(r *http.Request) bool {
	return cp.checker.CheckRequest(r)
}

func (cp *ControlPlane) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", cp.handleStart)
	mux.HandleFunc("/stop", cp.handleStop)
	mux.HandleFunc("/agents", cp.handleAgents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (cp *ControlPlane) handleStart(w http.ResponseWriter, r *http.Request) {
	if !cp.authenticate(r) {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if cp.onStart == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "controller not ready to start runs")
		return
	}
	body, _ := io.ReadAll(r.Body)
	runID, err := cp.onStart(r.Context(), body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (cp *ControlPlane) handleStop(w http.ResponseWriter, r *http.Request) {
	if !cp.authenticate(r) {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		RunID  string `json:"run_id"`
		Reason string `json:"reason"`
	}
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if cp.onStop != nil {
		if err := cp.onStop(req.RunID, req.Reason); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	cp.controller.Stop(req.RunID, req.Reason)
	w.WriteHeader(http.StatusNoContent)
}

func (cp *ControlPlane) handleAgents(w http.ResponseWriter, r *http.Request) {
	if !cp.authenticate(r) {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}
	writeJSON(w, http.StatusOK, cp.controller.Registry.List())
}

// Start serves the control plane on addr until Stop is called.
func (cp *ControlPlane) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	cp.listener = ln
	cp.server = &http.Server{Handler: cp.mux(), ReadHeaderTimeout: 5 * time.Second}
	go cp.server.Serve(ln)
	return nil
}

// Close shuts the HTTP server down.
func (cp *ControlPlane) Close() error {
	if cp.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return cp.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
