package transport

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"context"

	"github.com/Lythaeon/strest/internal/errs"
)

// HTTPAdapterID is the registered name for the HTTP(/1.1, /2) adapter.
const HTTPAdapterID = "http"

func init() {
	DefaultRegistry.MustRegister(&HTTPAdapter{})
}

// HTTPAdapter drives plain HTTP requests. It accepts every load mode; it is
// the default transport for single-URL and scenario runs alike.
type HTTPAdapter struct{}

func (a *HTTPAdapter) ID() string { return HTTPAdapterID }

func (a *HTTPAdapter) AcceptsLoadMode(LoadMode) bool { return true }

func (a *HTTPAdapter) Connect(ctx context.Context, cfg *Config) (Conn, error) {
	dialer := newSafeDialer(cfg.Timeouts.ConnectTimeout, cfg.AllowPrivateNetworks)
	rt := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.Timeouts.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	if cfg.TLS.SkipVerify || len(cfg.TLS.CABundle) > 0 {
		if cfg.TLS.SkipVerify {
			slog.Warn("tls_verification_disabled",
				"warning", "TLS certificate verification is disabled for this run",
				"endpoint", cfg.Endpoint)
		}
		tlsConfig := &tls.Config{InsecureSkipVerify: cfg.TLS.SkipVerify}
		if len(cfg.TLS.CABundle) > 0 {
			pool := x509.NewCertPool()
			if pool.AppendCertsFromPEM(cfg.TLS.CABundle) {
				tlsConfig.RootCAs = pool
			}
		}
		rt.TLSClientConfig = tlsConfig
	}

	client := &http.Client{
		Transport:     rt,
		Timeout:       0,
		CheckRedirect: buildCheckRedirect(cfg),
	}

	return &httpConn{client: client, transport: rt, cfg: cfg}, nil
}

type httpConn struct {
	client    *http.Client
	transport *http.Transport
	cfg       *Config
	closed    int32
}

func (c *httpConn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.transport.CloseIdleConnections()
	return nil
}

func (c *httpConn) Send(ctx context.Context, req *Request) (*Response, error) {
	deadline := c.cfg.Timeouts.RequestTimeout
	attemptCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	tracedCtx, tracker := tracedContext(attemptCtx)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(tracedCtx, method, req.URL, bodyReader)
	if err != nil {
		return &Response{Err: errs.New("transport.Send", errs.TransportRuntime, req.URL, err)}, nil
	}
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		netErr := MapError(err)
		return &Response{
			Err:         errs.New("transport.Send", errs.TransportRuntime, req.URL, netErr),
			TimedOut:    netErr.IsTimeout,
			PhaseTiming: tracker.finish(time.Now()),
		}, nil
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 100*1024*1024))
	end := time.Now()

	out := &Response{
		Status:        resp.StatusCode,
		Body:          body,
		ResponseBytes: int64(len(body)),
		PhaseTiming:   tracker.finish(end),
	}
	if readErr != nil {
		out.Err = errs.New("transport.Send", errs.TransportRuntime, req.URL, MapError(readErr))
	}
	return out, nil
}

// buildCheckRedirect creates a CheckRedirect function based on the redirect
// policy configuration.
func buildCheckRedirect(cfg *Config) func(req *http.Request, via []*http.Request) error {
	if cfg.RedirectPolicy == nil || cfg.RedirectPolicy.Mode == "" || cfg.RedirectPolicy.Mode == "deny" {
		return func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	maxRedirects := cfg.RedirectPolicy.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 0
	}
	if maxRedirects > 3 {
		maxRedirects = 3
	}

	originalURL, _ := url.Parse(cfg.Endpoint)
	originalHostname := ""
	if originalURL != nil {
		originalHostname = strings.ToLower(originalURL.Hostname())
	}

	return func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return http.ErrUseLastResponse
		}
		redirectHostname := strings.ToLower(req.URL.Hostname())
		switch cfg.RedirectPolicy.Mode {
		case "same_origin":
			if redirectHostname != originalHostname {
				return http.ErrUseLastResponse
			}
			return nil
		case "allowlist_only":
			for _, allowed := range cfg.RedirectPolicy.Allowlist {
				allowedHostname := strings.ToLower(allowed)
				if parsed, err := url.Parse(allowed); err == nil && parsed.Host != "" {
					allowedHostname = strings.ToLower(parsed.Hostname())
				}
				if redirectHostname == allowedHostname || strings.HasSuffix(redirectHostname, "."+allowedHostname) {
					return nil
				}
			}
			return http.ErrUseLastResponse
		default:
			return http.ErrUseLastResponse
		}
	}
}
