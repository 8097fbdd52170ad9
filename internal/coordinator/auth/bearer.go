// Package auth implements bearer-token checking for the distributed
// coordinator's two independent tokens: the wire handshake's auth_token and
// the manual control plane's control_auth_token. Both are plain
// shared-secret comparisons in constant time.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerChecker validates a single shared-secret token, either by direct
// comparison (wire handshake) or via an Authorization: Bearer header (HTTP
// control plane).
type BearerChecker struct {
	token string
}

// NewBearerChecker builds a checker for token. An empty token disables
// authentication (every request/handshake is accepted) — used for local
// development and the mock server, never the default.
func NewBearerChecker(token string) *BearerChecker {
	return &BearerChecker{token: token}
}

// Equal reports whether candidate matches the configured token in constant
// time, for the wire protocol's AgentHello.Token field.
func (b *BearerChecker) Equal(candidate string) bool {
	if b.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(b.token)) == 1
}

// CheckRequest extracts the Authorization: Bearer <token> header from r and
// validates it, for the manual HTTP control plane.
func (b *BearerChecker) CheckRequest(r *http.Request) bool {
	if b.token == "" {
		return true
	}
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return false
	}
	return b.Equal(strings.TrimPrefix(h, prefix))
}
