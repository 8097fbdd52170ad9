// Package transport implements the adapter contract load generation drives
// against: a pluggable Connect/Send/Close surface selected once at run
// start and invoked from every worker's hot path.
package transport

import (
	"time"

	"github.com/Lythaeon/strest/internal/types"
)

// LoadMode describes how the engine is pacing dispatch, so an adapter can
// declare which modes it accepts.
type LoadMode string

const (
	LoadModeArrival     LoadMode = "arrival" // open-loop: paced by a target rate
	LoadModeRamp        LoadMode = "ramp"    // open-loop staged profile
	LoadModeConcurrency LoadMode = "concurrency"
	LoadModeProbe       LoadMode = "probe" // one-shot request/response, no pacing semantics
)

// Request is a single attempt to dispatch, built from the scenario step (or
// single-URL config) currently being executed.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// StepIndex and InFlightAtStart are carried through for the outcome.
	StepIndex       int
	InFlightAtStart int
}

// Response is what a transport adapter reports for one completed attempt,
// before the caller turns it into a types.RequestOutcome via the expected-
// status/assertion policy.
type Response struct {
	Status        int
	Body          []byte
	ResponseBytes int64
	PhaseTiming   *PhaseTiming
	Err           error // non-nil on transport failure; classified via ClassifyError
	TimedOut      bool
}

// PhaseTiming contains detailed phase timing decomposition for HTTP requests.
// All values are in milliseconds.
type PhaseTiming struct {
	DNSMs            int64 `json:"dns_ms"`
	TCPConnectMs     int64 `json:"tcp_connect_ms"`
	TLSHandshakeMs   int64 `json:"tls_handshake_ms,omitempty"`
	TTFBMs           int64 `json:"ttfb_ms"`
	DownloadMs       int64 `json:"download_ms"`
	E2EMs            int64 `json:"e2e_ms"`
	ConnectionReused bool  `json:"connection_reused"`
}

// TimeoutConfig holds timeout settings for transport operations.
type TimeoutConfig struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultTimeoutConfig returns sensible default timeout values.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// RedirectPolicyConfig holds redirect policy configuration.
type RedirectPolicyConfig struct {
	// Mode is the redirect policy mode: "deny", "same_origin", or "allowlist_only".
	Mode string
	// MaxRedirects is the maximum number of redirects to follow (max 3).
	MaxRedirects int
	// Allowlist is a list of allowed redirect target hosts (for allowlist_only mode).
	Allowlist []string
}

// TLSPolicy configures certificate verification for the HTTP adapter.
type TLSPolicy struct {
	SkipVerify bool
	CABundle   []byte
}

// Config holds configuration for a transport adapter.
type Config struct {
	// Endpoint is the target base URL; individual requests may override it
	// with a full URL per scenario step.
	Endpoint string

	Headers map[string]string

	Timeouts TimeoutConfig

	TLS TLSPolicy

	// AllowPrivateNetworks lists CIDR ranges excluded from the SSRF-guarding
	// safe dialer's default private-network block.
	AllowPrivateNetworks []string

	RedirectPolicy *RedirectPolicyConfig
}

// ClassifyError maps a transport-level error (or a timeout flag) to an
// outcome class.
func ClassifyError(resp *Response) types.OutcomeClass {
	if resp.TimedOut {
		return types.OutcomeTimeout
	}
	if resp.Err != nil {
		return types.OutcomeTransport
	}
	return types.OutcomeOk
}
