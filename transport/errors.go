package transport

import (
	"errors"
	"fmt"
)

// Common errors for peerwire transports
var (
	// ErrNotStarted indicates an operation requiring a started transport
	ErrNotStarted = errors.New("transport not started")

	// ErrStopped indicates the transport has been stopped
	ErrStopped = errors.New("transport stopped")

	// ErrUnknownPeer indicates the target peer is not identified on this transport
	ErrUnknownPeer = errors.New("unknown or unconnected peer")

	// ErrInvalidAddress indicates an unparseable dial target
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidHello indicates the first payload unit was not a valid hello
	ErrInvalidHello = errors.New("invalid hello")

	// ErrIdentityMismatch indicates the remote identified under an unexpected PeerID
	ErrIdentityMismatch = errors.New("peer identity mismatch")

	// ErrHandshakeFailed indicates the WebSocket opening handshake failed
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrFragmentedFrame indicates a frame with the fin bit clear
	ErrFragmentedFrame = errors.New("fragmented frames not supported")

	// ErrMaskRequired indicates an unmasked frame where masking was expected
	ErrMaskRequired = errors.New("unmasked frame from masking direction")

	// ErrMaskForbidden indicates a masked frame where masking was forbidden
	ErrMaskForbidden = errors.New("masked frame from non-masking direction")

	// ErrUnknownOpcode indicates a frame with an unsupported opcode
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrHelloTimeout indicates the remote hello did not arrive in time
	ErrHelloTimeout = errors.New("timed out waiting for hello")
)

// ConnError represents a per-connection fault with additional context.
// It is the error type carried by error events.
type ConnError struct {
	Op   string // operation that caused the error
	Peer PeerID // remote identity if known
	Addr string // remote address if relevant
	Err  error  // underlying error
}

func (e *ConnError) Error() string {
	switch {
	case e.Peer != "" && e.Addr != "":
		return fmt.Sprintf("peerwire %s %s (%s): %v", e.Op, e.Peer, e.Addr, e.Err)
	case e.Peer != "":
		return fmt.Sprintf("peerwire %s %s: %v", e.Op, e.Peer, e.Err)
	case e.Addr != "":
		return fmt.Sprintf("peerwire %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("peerwire %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// newConnError creates a new ConnError
func newConnError(op string, peer PeerID, addr string, err error) *ConnError {
	return &ConnError{
		Op:   op,
		Peer: peer,
		Addr: addr,
		Err:  err,
	}
}
