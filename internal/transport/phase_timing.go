package transport

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

// timingTrace collects per-phase timestamps for one HTTP attempt via
// httptrace callbacks. Callbacks can fire from the transport's own
// goroutines, so every write is mutex-guarded.
type timingTrace struct {
	mu sync.Mutex

	start        time.Time
	dnsStart     time.Time
	dnsDone      time.Time
	connectStart time.Time
	connectDone  time.Time
	tlsStart     time.Time
	tlsDone      time.Time
	gotConn      time.Time
	wroteRequest time.Time
	firstByte    time.Time
	reused       bool
}

// tracedContext wraps ctx with an httptrace recording into the returned
// trace.
func tracedContext(ctx context.Context) (context.Context, *timingTrace) {
	t := &timingTrace{start: time.Now()}
	stamp := func(dst *time.Time) func() {
		return func() {
			t.mu.Lock()
			*dst = time.Now()
			t.mu.Unlock()
		}
	}
	ct := &httptrace.ClientTrace{
		DNSStart:          func(httptrace.DNSStartInfo) { stamp(&t.dnsStart)() },
		DNSDone:           func(httptrace.DNSDoneInfo) { stamp(&t.dnsDone)() },
		ConnectStart:      func(string, string) { stamp(&t.connectStart)() },
		ConnectDone:       func(string, string, error) { stamp(&t.connectDone)() },
		TLSHandshakeStart: stamp(&t.tlsStart),
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			stamp(&t.tlsDone)()
		},
		GotConn: func(info httptrace.GotConnInfo) {
			t.mu.Lock()
			t.gotConn = time.Now()
			t.reused = info.Reused
			t.mu.Unlock()
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { stamp(&t.wroteRequest)() },
		GotFirstResponseByte: stamp(&t.firstByte),
	}
	return httptrace.WithClientTrace(ctx, ct), t
}

// finish derives the attempt's phase breakdown at end time. Connection
// setup phases are reported only for fresh connections; a reused pooled
// connection has no DNS/connect/TLS cost to attribute.
func (t *timingTrace) finish(end time.Time) *PhaseTiming {
	t.mu.Lock()
	defer t.mu.Unlock()

	pt := &PhaseTiming{
		ConnectionReused: t.reused,
		E2EMs:            end.Sub(t.start).Milliseconds(),
	}

	if !t.reused {
		pt.DNSMs = spanMs(t.dnsStart, t.dnsDone)
		pt.TCPConnectMs = spanMs(t.connectStart, t.connectDone)
		pt.TLSHandshakeMs = spanMs(t.tlsStart, t.tlsDone)
	}

	if !t.firstByte.IsZero() {
		// TTFB is measured from the last request byte written when known,
		// falling back to connection acquisition, then attempt start.
		baseline := t.start
		switch {
		case !t.wroteRequest.IsZero():
			baseline = t.wroteRequest
		case !t.gotConn.IsZero():
			baseline = t.gotConn
		}
		pt.TTFBMs = t.firstByte.Sub(baseline).Milliseconds()
		pt.DownloadMs = end.Sub(t.firstByte).Milliseconds()
	}
	return pt
}

func spanMs(from, to time.Time) int64 {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return to.Sub(from).Milliseconds()
}
