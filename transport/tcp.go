package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peerwire/limits"
	"github.com/opd-ai/peerwire/metrics"
)

// TCPOptions configures a TCPTransport. Setting ListenHost enables server
// mode; leaving it empty yields a dial-only instance.
type TCPOptions struct {
	// LocalID is the identity sent in the hello. Generated when empty.
	LocalID PeerID

	// MaxPayload is the unit payload ceiling in bytes. Zero means
	// limits.DefaultMaxPayload.
	MaxPayload int

	// HandshakeTimeout bounds dialing and the hello wait on each
	// connection. Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// Server mode. ListenPort zero with a non-empty ListenHost binds an
	// ephemeral port.
	ListenHost string
	ListenPort int

	// Metrics is an optional Prometheus collector. Nil disables
	// instrumentation.
	Metrics *metrics.Collector
}

// TCPTransport carries framed byte exchange over raw TCP with 4-byte
// big-endian length prefixes and no wire handshake; the hello is the first
// unit in both directions. It satisfies the Transport interface.
type TCPTransport struct {
	opts    TCPOptions
	localID PeerID
	log     *logrus.Entry

	dispatch *dispatcher
	registry *peerRegistry
	ledger   *dialLedger

	startMu sync.Mutex
	mu      sync.Mutex
	started bool
	stopped bool
	listener net.Listener
	conns    map[*peerConn]struct{}
	// byAddr indexes live outbound connections by their normalized dial
	// target so sequential sends to one address reuse the socket.
	byAddr map[string]*peerConn
	wg     sync.WaitGroup
}

// NewTCPTransport validates and stores configuration only; Start performs
// the I/O.
func NewTCPTransport(opts TCPOptions) (*TCPTransport, error) {
	if opts.ListenHost == "" && opts.ListenPort != 0 {
		return nil, fmt.Errorf("%w: ListenPort set without ListenHost", ErrInvalidAddress)
	}

	localID := opts.LocalID
	if localID == "" {
		localID = generateLocalID()
	}

	t := &TCPTransport{
		opts:     opts,
		localID:  localID,
		dispatch: newDispatcher(),
		registry: newPeerRegistry(),
		ledger:   newDialLedger(),
		conns:    make(map[*peerConn]struct{}),
		byAddr:   make(map[string]*peerConn),
		log: logrus.WithFields(logrus.Fields{
			"component": "tcp_transport",
			"local_id":  string(localID),
		}),
	}
	return t, nil
}

// LocalID returns the configured or generated local identity.
func (t *TCPTransport) LocalID() PeerID {
	return t.localID
}

// ListenAddresses returns the bound listener address once started in server
// mode, else nothing.
func (t *TCPTransport) ListenAddresses() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return []string{t.listener.Addr().String()}
}

// ConnectedPeers returns a snapshot of the identified peers.
func (t *TCPTransport) ConnectedPeers() []PeerID {
	return t.registry.snapshot()
}

func (t *TCPTransport) OnConnection(h ConnectionHandler)       { t.dispatch.setConnectionHandler(h) }
func (t *TCPTransport) OnDisconnection(h DisconnectionHandler) { t.dispatch.setDisconnectionHandler(h) }
func (t *TCPTransport) OnFrame(h FrameHandler)                 { t.dispatch.setFrameHandler(h) }
func (t *TCPTransport) OnError(h ErrorHandler)                 { t.dispatch.setErrorHandler(h) }

// Start binds the listener when configured for server mode. A dial-only
// instance has no I/O to perform and just becomes ready.
func (t *TCPTransport) Start() error {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if t.opts.ListenHost == "" {
		t.mu.Lock()
		t.started = true
		t.mu.Unlock()
		return nil
	}

	addr := net.JoinHostPort(t.opts.ListenHost, fmt.Sprintf("%d", t.opts.ListenPort))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		_ = listener.Close()
		return ErrStopped
	}
	t.listener = listener
	t.started = true
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{
		"function": "Start",
		"address":  listener.Addr().String(),
	}).Info("TCP transport listening")

	t.wg.Add(1)
	go t.acceptLoop(listener)
	return nil
}

func (t *TCPTransport) acceptLoop(listener net.Listener) {
	defer t.wg.Done()
	for {
		sock, err := listener.Accept()
		if err != nil {
			return
		}
		t.wg.Add(1)
		go t.handleInbound(sock)
	}
}

// handleInbound runs one accepted socket: send the local hello immediately,
// then read units until the remote hello arrives and the frame stream
// follows.
func (t *TCPTransport) handleInbound(sock net.Conn) {
	defer t.wg.Done()

	c := newPeerConn(sock, false)
	if !t.trackConn(c) {
		_ = sock.Close()
		return
	}

	timeout := effectiveHandshakeTimeout(t.opts.HandshakeTimeout)
	_ = sock.SetReadDeadline(time.Now().Add(timeout))

	if err := t.writeUnit(c, encodeHello(t.localID)); err != nil {
		t.dropConn(c, newConnError("hello", "", c.remoteAddr(), err))
		return
	}

	t.readLoop(c)
}

// Connect dials a TCP target (tcp://host:port or host:port), or reuses the
// live outbound connection or in-flight attempt for it, and returns the
// remote identity once its hello validated. When expected is non-empty a
// different identity aborts the dial.
func (t *TCPTransport) Connect(addr string, expected PeerID) (PeerID, error) {
	t.mu.Lock()
	started, stopped := t.started, t.stopped
	t.mu.Unlock()
	if stopped {
		return "", ErrStopped
	}
	if !started {
		return "", ErrNotStarted
	}

	addrKey, err := parseTCPAddress(addr)
	if err != nil {
		return "", err
	}

	// A live identified connection to this address short-circuits both the
	// ledger and the dial.
	t.mu.Lock()
	if c, ok := t.byAddr[addrKey]; ok && c.identified() {
		peer := c.peerID()
		t.mu.Unlock()
		if expected != "" && peer != expected {
			return "", fmt.Errorf("%w: got %q, want %q", ErrIdentityMismatch, peer, expected)
		}
		return peer, nil
	}
	t.mu.Unlock()

	attempt, initiated := t.ledger.begin(addrKey)
	if initiated {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.dial(addrKey, attempt, expected)
		}()
	}

	peer, err := attempt.wait()
	if err != nil {
		return "", err
	}
	// Joiners carry their own expectation; the initiator's was already
	// enforced inside the attempt.
	if expected != "" && peer != expected {
		return "", fmt.Errorf("%w: got %q, want %q", ErrIdentityMismatch, peer, expected)
	}
	return peer, nil
}

// dial owns one ledger attempt: open the socket, exchange hellos, settle.
func (t *TCPTransport) dial(addrKey string, attempt *dialAttempt, expected PeerID) {
	timeout := effectiveHandshakeTimeout(t.opts.HandshakeTimeout)

	sock, err := net.DialTimeout("tcp", addrKey, timeout)
	if err != nil {
		t.ledger.settle(addrKey, attempt, "", fmt.Errorf("dialing %s: %w", addrKey, err))
		return
	}

	c := newPeerConn(sock, true)
	c.addrKey = addrKey
	c.expectedPeer = expected
	c.helloCh = make(chan error, 1)

	if !t.trackConn(c) {
		_ = sock.Close()
		t.ledger.settle(addrKey, attempt, "", ErrStopped)
		return
	}

	_ = sock.SetReadDeadline(time.Now().Add(timeout))

	if err := t.writeUnit(c, encodeHello(t.localID)); err != nil {
		t.dropConn(c, newConnError("hello", "", c.remoteAddr(), err))
		t.ledger.settle(addrKey, attempt, "", err)
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.readLoop(c)
	}()

	if err := <-c.helloCh; err != nil {
		t.ledger.settle(addrKey, attempt, "", err)
		return
	}
	t.ledger.settle(addrKey, attempt, c.peerID(), nil)
}

// trackConn adds a live connection to the instance set, refusing once
// stopped.
func (t *TCPTransport) trackConn(c *peerConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.conns[c] = struct{}{}
	return true
}

// readLoop accumulates socket bytes and drains every complete length-prefixed
// unit from the front of the buffer.
func (t *TCPTransport) readLoop(c *peerConn) {
	chunk := make([]byte, 4096)
	for {
		n, err := c.sock.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			if perr := t.processBuffer(c); perr != nil {
				t.dropConn(c, newConnError("unit", c.peerID(), c.remoteAddr(), perr))
				return
			}
		}
		if err != nil {
			if !c.identified() {
				err = fmt.Errorf("%w: %v", ErrHelloTimeout, err)
				t.dropConn(c, newConnError("hello", "", c.remoteAddr(), err))
			} else {
				t.dropConn(c, nil)
			}
			return
		}
	}
}

func (t *TCPTransport) processBuffer(c *peerConn) error {
	for {
		if len(c.buf) < 4 {
			return nil
		}
		declared := binary.BigEndian.Uint32(c.buf[:4])

		// The ceiling check runs on the declared value before any payload
		// allocation, bounding memory against a misbehaving peer.
		if err := limits.ValidateDeclaredLength(uint64(declared), t.opts.MaxPayload); err != nil {
			return err
		}
		total := 4 + int(declared)
		if len(c.buf) < total {
			return nil
		}

		payload := make([]byte, declared)
		copy(payload, c.buf[4:total])
		c.buf = c.buf[total:]

		if err := t.handleUnit(c, payload); err != nil {
			return err
		}
	}
}

func (t *TCPTransport) handleUnit(c *peerConn, payload []byte) error {
	if !c.identified() {
		return t.handleHello(c, payload)
	}
	from := c.peerID()
	t.dispatch.emit(event{kind: eventFrame, peer: from, payload: payload})
	t.opts.Metrics.FrameReceived(metrics.BackendTCP, len(payload))
	return nil
}

// handleHello validates the first unit, binds the identity, and registers
// the connection.
func (t *TCPTransport) handleHello(c *peerConn, payload []byte) error {
	peer, err := parseHello(payload)
	if err != nil {
		return err
	}
	if c.expectedPeer != "" && peer != c.expectedPeer {
		return fmt.Errorf("%w: got %q, want %q", ErrIdentityMismatch, peer, c.expectedPeer)
	}
	if !c.identify(peer) {
		return fmt.Errorf("%w: duplicate hello", ErrInvalidHello)
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	superseded := t.registry.insert(peer, c)
	if c.addrKey != "" {
		t.byAddr[c.addrKey] = c
	}
	t.mu.Unlock()
	if superseded != nil {
		t.discardSuperseded(superseded)
	}

	_ = c.sock.SetReadDeadline(time.Time{})

	t.log.WithFields(logrus.Fields{
		"function": "handleHello",
		"peer":     string(peer),
		"outbound": c.outbound,
		"address":  c.remoteAddr(),
	}).Info("peer identified")

	t.dispatch.emit(event{kind: eventConnection, peer: peer, outbound: c.outbound, addr: c.remoteAddr()})
	t.opts.Metrics.ConnectionOpened(metrics.BackendTCP, direction(c.outbound))

	if c.helloCh != nil {
		c.helloCh <- nil
	}
	return nil
}

// discardSuperseded closes a connection replaced in the registry by a newer
// one under the same PeerID. No disconnection event fires.
func (t *TCPTransport) discardSuperseded(old *peerConn) {
	t.log.WithFields(logrus.Fields{
		"function": "discardSuperseded",
		"peer":     string(old.peerID()),
	}).Debug("closing superseded connection")

	t.mu.Lock()
	delete(t.conns, old)
	if old.addrKey != "" && t.byAddr[old.addrKey] == old {
		delete(t.byAddr, old.addrKey)
	}
	t.mu.Unlock()
	old.close()
}

// dropConn tears one connection down. Idempotent under multiple close
// signals for one socket.
func (t *TCPTransport) dropConn(c *peerConn, cause *ConnError) {
	if !c.close() {
		return
	}

	t.mu.Lock()
	delete(t.conns, c)
	if c.addrKey != "" && t.byAddr[c.addrKey] == c {
		delete(t.byAddr, c.addrKey)
	}
	t.mu.Unlock()

	if peer := c.peerID(); peer != "" && t.registry.remove(peer, c) {
		t.dispatch.emit(event{kind: eventDisconnection, peer: peer})
		t.opts.Metrics.ConnectionClosed(metrics.BackendTCP)
	}

	if cause != nil {
		t.log.WithFields(logrus.Fields{
			"function": "dropConn",
			"address":  c.remoteAddr(),
		}).WithError(cause).Warn("connection fault")
		t.dispatch.emit(event{kind: eventError, err: cause})
		t.opts.Metrics.ConnectionError(metrics.BackendTCP)
	}

	if c.helloCh != nil {
		err := error(ErrStopped)
		if cause != nil {
			err = cause.Err
		}
		select {
		case c.helloCh <- err:
		default:
		}
	}
}

// Send writes one unit to an identified peer, or to a dial address
// (tcp://host:port or host:port), triggering or joining an outbound attempt
// for unconnected targets.
func (t *TCPTransport) Send(to PeerID, payload []byte) error {
	t.mu.Lock()
	started, stopped := t.started, t.stopped
	t.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if !started {
		return ErrNotStarted
	}
	if err := limits.ValidatePayloadSize(len(payload), t.opts.MaxPayload); err != nil {
		return err
	}

	c, ok := t.registry.lookup(to)
	if !ok {
		if !looksLikeTCPAddress(string(to)) {
			return fmt.Errorf("%w: %q", ErrUnknownPeer, to)
		}
		peer, err := t.Connect(string(to), "")
		if err != nil {
			return err
		}
		if c, ok = t.registry.lookup(peer); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPeer, peer)
		}
	}

	if err := t.writeUnit(c, payload); err != nil {
		return newConnError("send", c.peerID(), c.remoteAddr(), err)
	}
	t.opts.Metrics.FrameSent(metrics.BackendTCP, len(payload))
	return nil
}

// Broadcast writes the payload to every identified peer, best effort.
func (t *TCPTransport) Broadcast(payload []byte) int {
	if err := limits.ValidatePayloadSize(len(payload), t.opts.MaxPayload); err != nil {
		return 0
	}
	sent := 0
	for _, c := range t.registry.snapshotConns() {
		if err := t.writeUnit(c, payload); err == nil {
			sent++
			t.opts.Metrics.FrameSent(metrics.BackendTCP, len(payload))
		}
	}
	return sent
}

// writeUnit writes the 4-byte big-endian length prefix and the payload under
// the connection's write mutex.
func (t *TCPTransport) writeUnit(c *peerConn, payload []byte) error {
	unit := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(unit[:4], uint32(len(payload)))
	copy(unit[4:], payload)
	return c.writeRaw(unit)
}

// Stop closes every connection and the server socket, and fails every
// pending dial waiter. Safe to call repeatedly or before Start.
func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	listener := t.listener
	t.listener = nil
	conns := t.conns
	t.conns = make(map[*peerConn]struct{})
	t.byAddr = make(map[string]*peerConn)
	t.mu.Unlock()

	t.dispatch.stop()

	if listener != nil {
		_ = listener.Close()
	}
	for c := range conns {
		c.close()
		if c.helloCh != nil {
			select {
			case c.helloCh <- ErrStopped:
			default:
			}
		}
	}
	t.ledger.failAll(ErrStopped)
	t.registry.clear()
	t.wg.Wait()

	t.log.WithFields(logrus.Fields{"function": "Stop"}).Info("TCP transport stopped")
	return nil
}
