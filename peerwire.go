package peerwire

import (
	"fmt"

	"github.com/opd-ai/peerwire/transport"
)

// Backend selects the wire protocol a transport instance speaks.
type Backend string

const (
	// BackendWebSocket selects the WebSocket-compatible protocol.
	BackendWebSocket Backend = "websocket"

	// BackendTCP selects the raw length-prefixed TCP protocol.
	BackendTCP Backend = "tcp"
)

// Options selects and configures a transport backend.
type Options struct {
	Backend   Backend
	WebSocket transport.WebSocketOptions
	TCP       transport.TCPOptions
}

// New constructs the configured transport backend. The returned instance has
// validated its configuration but performed no I/O; call Start to bind or
// dial.
func New(opts Options) (transport.Transport, error) {
	switch opts.Backend {
	case BackendWebSocket:
		return transport.NewWebSocketTransport(opts.WebSocket)
	case BackendTCP:
		return transport.NewTCPTransport(opts.TCP)
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}
