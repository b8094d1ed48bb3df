package transport

import (
	"time"

	"github.com/google/uuid"
)

// PeerID is the opaque identifier of a logical peer, independent of its
// underlying socket. It is exchanged once via the hello message and is
// immutable once bound to a connection.
type PeerID string

// DefaultHandshakeTimeout bounds the wire handshake and the wait for the
// remote hello. It covers both phases on a WebSocket connection (HTTP
// upgrade, then hello), so it is deliberately generous.
const DefaultHandshakeTimeout = 10 * time.Second

// defaultWriteTimeout bounds a single frame write so a stalled peer cannot
// park a sender forever.
const defaultWriteTimeout = 5 * time.Second

// Handler types for transport events. At most one handler per event kind is
// registered on an instance; a later registration replaces the earlier one.
type (
	// ConnectionHandler is invoked once a remote peer has completed its
	// hello. outbound reports whether the local side initiated the
	// connection; addr is the remote network address.
	ConnectionHandler func(peer PeerID, outbound bool, addr string)

	// DisconnectionHandler is invoked when an identified peer's connection
	// is torn down.
	DisconnectionHandler func(peer PeerID)

	// FrameHandler receives one opaque payload unit from an identified peer.
	// The transport never interprets the bytes.
	FrameHandler func(from PeerID, payload []byte)

	// ErrorHandler receives asynchronous per-connection faults. Errors
	// delivered here are fatal to one connection, never to the instance.
	ErrorHandler func(err error)
)

// Transport is the capability set shared by the WebSocket and TCP backends:
// lifecycle, identity, I/O, and event emission. Constructors validate and
// store configuration only; Start performs I/O.
type Transport interface {
	// Start performs the backend's I/O setup (bind+listen or dial+handshake).
	// It is idempotent once started. On failure it leaves no leaked
	// listener or socket.
	Start() error

	// Stop closes every connection and any server socket. It is safe to
	// call repeatedly or before Start. After Stop returns, no further
	// events fire.
	Stop() error

	// Send writes one binary frame to an identified peer. It fails
	// synchronously with ErrNotStarted or ErrUnknownPeer.
	Send(to PeerID, payload []byte) error

	// LocalID returns the configured or generated local identity.
	LocalID() PeerID

	// ListenAddresses returns the bound address(es) once started in server
	// mode, else an empty slice.
	ListenAddresses() []string

	// ConnectedPeers returns a snapshot of the currently identified peers.
	ConnectedPeers() []PeerID

	// Broadcast writes the payload to every identified peer, best effort,
	// and returns the number of peers written to.
	Broadcast(payload []byte) int

	OnConnection(ConnectionHandler)
	OnDisconnection(DisconnectionHandler)
	OnFrame(FrameHandler)
	OnError(ErrorHandler)
}

// generateLocalID produces a fresh PeerID for instances configured without one.
func generateLocalID() PeerID {
	return PeerID(uuid.NewString())
}

// effectiveHandshakeTimeout resolves a configured timeout, substituting the
// default when unset.
func effectiveHandshakeTimeout(configured time.Duration) time.Duration {
	if configured <= 0 {
		return DefaultHandshakeTimeout
	}
	return configured
}
