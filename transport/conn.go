package transport

import (
	"net"
	"sync"
	"time"
)

// connState tracks the lifecycle of one connection.
type connState int

const (
	// stateHandshaking covers everything before a valid hello: the WS wire
	// handshake and the wait for the first payload unit.
	stateHandshaking connState = iota
	// stateIdentified means the remote hello validated and the connection
	// is registered under its PeerID.
	stateIdentified
	// stateClosed is terminal.
	stateClosed
)

// peerConn owns exactly one socket and its per-connection state: direction,
// lifecycle state, the unparsed-byte accumulation buffer, and the PeerID once
// bound. Buffering is never shared between connections.
type peerConn struct {
	sock     net.Conn
	outbound bool

	// WS direction bits. Client-role sockets mask outbound frames and
	// expect unmasked inbound; server-role sockets are the inverse. Unused
	// by the TCP backend.
	maskOutbound bool
	expectMasked bool

	// addrKey is the normalized dial target for outbound TCP connections,
	// used to index the live-connection table. Empty otherwise.
	addrKey string

	// expectedPeer, when non-empty, is the identity the remote hello must
	// carry; a mismatch is fatal to the connection.
	expectedPeer PeerID

	mu    sync.Mutex
	state connState
	peer  PeerID
	buf   []byte

	// writeMu serializes frame writes so sends to one peer are never
	// reordered or interleaved.
	writeMu sync.Mutex

	// helloCh, when non-nil, receives the outcome of the hello wait:
	// nil once identified, or the teardown cause. Buffered so teardown
	// never blocks on it. Set only on connections a caller is waiting on
	// (client-mode Start, explicit TCP dials).
	helloCh chan error

	// done is closed when the connection closes.
	done      chan struct{}
	closeOnce sync.Once
}

func newPeerConn(sock net.Conn, outbound bool) *peerConn {
	return &peerConn{
		sock:     sock,
		outbound: outbound,
		state:    stateHandshaking,
		done:     make(chan struct{}),
	}
}

// identify binds the remote PeerID and moves the connection to the
// identified state. The binding is immutable: a second call is rejected.
func (c *peerConn) identify(peer PeerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateHandshaking {
		return false
	}
	c.peer = peer
	c.state = stateIdentified
	return true
}

// peerID returns the bound identity, empty until identified.
func (c *peerConn) peerID() PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *peerConn) identified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateIdentified
}

// close closes the socket exactly once and reports whether this call was the
// one that closed it. Multiple close signals for one socket (read error plus
// Stop, for example) collapse here.
func (c *peerConn) close() bool {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.mu.Lock()
		c.state = stateClosed
		c.mu.Unlock()
		close(c.done)
		_ = c.sock.Close()
	})
	return first
}

// pushback prepends bytes consumed past a protocol boundary (the HTTP head)
// to the accumulation buffer, so frame parsing sees them first.
func (c *peerConn) pushback(data []byte) {
	if len(data) == 0 {
		return
	}
	c.buf = append(append([]byte{}, data...), c.buf...)
}

// writeRaw writes a fully encoded frame under the write mutex with a bounded
// deadline.
func (c *peerConn) writeRaw(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.sock.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return err
	}
	_, err := c.sock.Write(frame)
	return err
}

// remoteAddr returns the remote network address as a string.
func (c *peerConn) remoteAddr() string {
	if addr := c.sock.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
