package transport

import (
	"context"
	"fmt"

	"github.com/Lythaeon/strest/internal/errs"
)

// stubAdapter declares a selectable adapter kind without a runtime
// implementation in this build. Connect fails fast with errs.TransportSetup
// naming the missing capability; callers must not substitute a different
// adapter or silently no-op.
type stubAdapter struct {
	id        string
	buildTag  string
	loadModes map[LoadMode]bool
}

func (a *stubAdapter) ID() string { return a.id }

func (a *stubAdapter) AcceptsLoadMode(mode LoadMode) bool {
	if a.loadModes == nil {
		return mode == LoadModeProbe
	}
	return a.loadModes[mode]
}

func (a *stubAdapter) Connect(ctx context.Context, cfg *Config) (Conn, error) {
	return nil, errs.New("transport.Connect", errs.TransportSetup, a.id,
		fmt.Errorf("adapter %q is not built into this binary (requires build tag %q)", a.id, a.buildTag))
}

func init() {
	// gRPC-unary restricts accepted load modes to arrival and ramp, per the
	// design note; streaming gRPC and the remaining datagram-style protocols
	// are one-shot probe adapters today.
	DefaultRegistry.MustRegister(&stubAdapter{
		id: "grpc-unary", buildTag: "grpc",
		loadModes: map[LoadMode]bool{LoadModeArrival: true, LoadModeRamp: true},
	})
	DefaultRegistry.MustRegister(&stubAdapter{id: "grpc-streaming", buildTag: "grpc"})
	DefaultRegistry.MustRegister(&stubAdapter{id: "quic", buildTag: "quic"})
	DefaultRegistry.MustRegister(&stubAdapter{id: "mqtt", buildTag: "mqtt"})
	DefaultRegistry.MustRegister(&stubAdapter{id: "enet", buildTag: "enet"})
	DefaultRegistry.MustRegister(&stubAdapter{id: "kcp", buildTag: "kcp"})
	DefaultRegistry.MustRegister(&stubAdapter{id: "raknet", buildTag: "raknet"})
}
