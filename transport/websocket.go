package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peerwire/limits"
	"github.com/opd-ai/peerwire/metrics"
)

// WebSocketOptions configures a WebSocketTransport. Setting URL selects
// client mode; setting ListenHost selects server mode. Exactly one must be
// set.
type WebSocketOptions struct {
	// LocalID is the identity sent in the hello. Generated when empty.
	LocalID PeerID

	// MaxPayload is the frame payload ceiling in bytes. Zero means
	// limits.DefaultMaxPayload.
	MaxPayload int

	// HandshakeTimeout bounds the wire handshake and the hello wait on each
	// connection. Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// PingInterval enables keepalive Ping frames on identified connections
	// when positive. Disabled by default.
	PingInterval time.Duration

	// Server mode.
	ListenHost string
	ListenPort int
	Path       string // defaults to "/"

	// Client mode.
	URL            string // ws://host:port/path
	ExpectedPeerID PeerID // when set, the remote hello must match exactly

	// Metrics is an optional Prometheus collector. Nil disables
	// instrumentation.
	Metrics *metrics.Collector
}

// WebSocketTransport carries framed byte exchange over the WebSocket wire
// protocol (RFC 6455 subset, implemented here rather than by a protocol
// library). It satisfies the Transport interface.
type WebSocketTransport struct {
	opts    WebSocketOptions
	localID PeerID
	target  *wsTarget // parsed client URL, nil in server mode
	log     *logrus.Entry

	dispatch *dispatcher
	registry *peerRegistry

	startMu sync.Mutex // serializes Start against itself
	mu      sync.Mutex
	started bool
	stopped bool
	listener net.Listener
	conns    map[*peerConn]struct{}
	wg       sync.WaitGroup
}

// NewWebSocketTransport validates and stores configuration only; Start
// performs the I/O.
func NewWebSocketTransport(opts WebSocketOptions) (*WebSocketTransport, error) {
	if opts.URL != "" && opts.ListenHost != "" {
		return nil, fmt.Errorf("%w: both URL and ListenHost set", ErrInvalidAddress)
	}
	if opts.URL == "" && opts.ListenHost == "" {
		return nil, fmt.Errorf("%w: neither URL nor ListenHost set", ErrInvalidAddress)
	}

	var target *wsTarget
	if opts.URL != "" {
		var err error
		if target, err = parseWSAddress(opts.URL); err != nil {
			return nil, err
		}
	}
	if opts.Path == "" {
		opts.Path = "/"
	}

	localID := opts.LocalID
	if localID == "" {
		localID = generateLocalID()
	}

	t := &WebSocketTransport{
		opts:     opts,
		localID:  localID,
		target:   target,
		dispatch: newDispatcher(),
		registry: newPeerRegistry(),
		conns:    make(map[*peerConn]struct{}),
		log: logrus.WithFields(logrus.Fields{
			"component": "websocket_transport",
			"local_id":  string(localID),
		}),
	}
	return t, nil
}

// LocalID returns the configured or generated local identity.
func (t *WebSocketTransport) LocalID() PeerID {
	return t.localID
}

// ListenAddresses returns the bound listener address once started in server
// mode.
func (t *WebSocketTransport) ListenAddresses() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return []string{t.listener.Addr().String()}
}

// ConnectedPeers returns a snapshot of the identified peers.
func (t *WebSocketTransport) ConnectedPeers() []PeerID {
	return t.registry.snapshot()
}

func (t *WebSocketTransport) OnConnection(h ConnectionHandler)       { t.dispatch.setConnectionHandler(h) }
func (t *WebSocketTransport) OnDisconnection(h DisconnectionHandler) { t.dispatch.setDisconnectionHandler(h) }
func (t *WebSocketTransport) OnFrame(h FrameHandler)                 { t.dispatch.setFrameHandler(h) }
func (t *WebSocketTransport) OnError(h ErrorHandler)                 { t.dispatch.setErrorHandler(h) }

// Start binds the listener (server mode) or dials, upgrades, and exchanges
// hellos (client mode). Client-mode Start does not return until the remote
// hello arrived and, when ExpectedPeerID is set, matched.
func (t *WebSocketTransport) Start() error {
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

	if t.target == nil {
		return t.startServer()
	}
	return t.startClient()
}

func (t *WebSocketTransport) startServer() error {
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
		"function": "startServer",
		"address":  listener.Addr().String(),
		"path":     t.opts.Path,
	}).Info("WebSocket transport listening")

	t.wg.Add(1)
	go t.acceptLoop(listener)
	return nil
}

func (t *WebSocketTransport) acceptLoop(listener net.Listener) {
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

// handleInbound runs the server side of one accepted socket: upgrade, hello
// exchange, then the frame loop.
func (t *WebSocketTransport) handleInbound(sock net.Conn) {
	defer t.wg.Done()

	timeout := effectiveHandshakeTimeout(t.opts.HandshakeTimeout)
	_ = sock.SetReadDeadline(time.Now().Add(timeout))

	leftover, err := serverUpgrade(sock, t.opts.Path)
	if err != nil {
		_ = sock.Close()
		t.emitConnError(newConnError("upgrade", "", remoteAddrString(sock), err))
		return
	}

	c := newPeerConn(sock, false)
	c.expectMasked = true // client to server frames are always masked

	if !t.trackConn(c) {
		_ = sock.Close()
		return
	}

	// Hello goes out immediately after the wire handshake.
	if err := t.writeFrame(c, opText, encodeHello(t.localID)); err != nil {
		t.dropConn(c, newConnError("hello", "", c.remoteAddr(), err))
		return
	}

	c.pushback(leftover)
	t.readLoop(c)
}

func (t *WebSocketTransport) startClient() error {
	timeout := effectiveHandshakeTimeout(t.opts.HandshakeTimeout)

	sock, err := net.DialTimeout("tcp", t.target.host, timeout)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", t.target.host, err)
	}
	_ = sock.SetReadDeadline(time.Now().Add(timeout))

	leftover, err := clientUpgrade(sock, t.target.host, t.target.path)
	if err != nil {
		_ = sock.Close()
		return err
	}

	c := newPeerConn(sock, true)
	c.maskOutbound = true // client to server frames are always masked
	c.helloCh = make(chan error, 1)

	if !t.trackConn(c) {
		_ = sock.Close()
		return ErrStopped
	}

	if err := t.writeFrame(c, opText, encodeHello(t.localID)); err != nil {
		t.dropConn(c, newConnError("hello", "", c.remoteAddr(), err))
		return fmt.Errorf("sending hello: %w", err)
	}

	c.pushback(leftover)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.readLoop(c)
	}()

	// Start resolves only once the remote hello arrived and validated. The
	// read deadline set above bounds the wait; Stop closing the socket
	// fails it deterministically.
	if err := <-c.helloCh; err != nil {
		return err
	}

	t.mu.Lock()
	t.started = true
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{
		"function": "startClient",
		"url":      t.opts.URL,
		"peer":     string(c.peerID()),
	}).Info("WebSocket transport connected")
	return nil
}

// trackConn adds a live connection to the instance set, refusing once
// stopped.
func (t *WebSocketTransport) trackConn(c *peerConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.conns[c] = struct{}{}
	return true
}

// readLoop feeds socket bytes into the accumulation buffer and drains every
// complete frame from its front.
func (t *WebSocketTransport) readLoop(c *peerConn) {
	chunk := make([]byte, 4096)
	for {
		n, err := c.sock.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			if perr := t.processBuffer(c); perr != nil {
				if perr == errRemoteClosed {
					t.dropConn(c, nil)
				} else {
					t.dropConn(c, newConnError("frame", c.peerID(), c.remoteAddr(), perr))
				}
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

// errRemoteClosed marks a clean Close frame from the remote; teardown without
// an error event.
var errRemoteClosed = fmt.Errorf("remote close")

func (t *WebSocketTransport) processBuffer(c *peerConn) error {
	for {
		frame, consumed, err := decodeWSFrame(c.buf, c.expectMasked, t.opts.MaxPayload)
		if err == errNeedMoreData {
			return nil
		}
		if err != nil {
			return err
		}
		c.buf = c.buf[consumed:]
		if err := t.handleFrame(c, frame); err != nil {
			return err
		}
	}
}

func (t *WebSocketTransport) handleFrame(c *peerConn, frame *wsFrame) error {
	switch frame.opcode {
	case opPing:
		return t.writeFrame(c, opPong, frame.payload)
	case opPong:
		return nil
	case opClose:
		return errRemoteClosed
	default: // text or binary
		if !c.identified() {
			return t.handleHello(c, frame.payload)
		}
		from := c.peerID()
		t.dispatch.emit(event{kind: eventFrame, peer: from, payload: frame.payload})
		t.opts.Metrics.FrameReceived(metrics.BackendWebSocket, len(frame.payload))
		return nil
	}
}

// handleHello validates the first payload unit, binds the identity, and
// registers the connection. Only after this does the peer become
// addressable.
func (t *WebSocketTransport) handleHello(c *peerConn, payload []byte) error {
	peer, err := parseHello(payload)
	if err != nil {
		return err
	}
	if c.outbound && t.opts.ExpectedPeerID != "" && peer != t.opts.ExpectedPeerID {
		return fmt.Errorf("%w: got %q, want %q", ErrIdentityMismatch, peer, t.opts.ExpectedPeerID)
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
	t.mu.Unlock()
	if superseded != nil {
		t.discardSuperseded(superseded)
	}

	// The handshake deadline no longer applies.
	_ = c.sock.SetReadDeadline(time.Time{})

	t.log.WithFields(logrus.Fields{
		"function": "handleHello",
		"peer":     string(peer),
		"outbound": c.outbound,
		"address":  c.remoteAddr(),
	}).Info("peer identified")

	t.dispatch.emit(event{kind: eventConnection, peer: peer, outbound: c.outbound, addr: c.remoteAddr()})
	t.opts.Metrics.ConnectionOpened(metrics.BackendWebSocket, direction(c.outbound))

	if c.helloCh != nil {
		c.helloCh <- nil
	}
	if t.opts.PingInterval > 0 {
		t.wg.Add(1)
		go t.pingLoop(c)
	}
	return nil
}

// pingLoop sends keepalive Pings until the connection closes. The codec's
// automatic Pong on the remote side keeps the pair alive.
func (t *WebSocketTransport) pingLoop(c *peerConn) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := t.writeFrame(c, opPing, nil); err != nil {
				t.dropConn(c, nil)
				return
			}
		}
	}
}

// discardSuperseded closes a connection replaced in the registry by a newer
// one identifying under the same PeerID. No disconnection event fires: the
// peer remains connected through its replacement.
func (t *WebSocketTransport) discardSuperseded(old *peerConn) {
	t.log.WithFields(logrus.Fields{
		"function": "discardSuperseded",
		"peer":     string(old.peerID()),
	}).Debug("closing superseded connection")

	t.mu.Lock()
	delete(t.conns, old)
	t.mu.Unlock()
	old.close()
}

// dropConn tears one connection down: close the socket, clean the tables,
// and emit the disconnection and error events as appropriate. Idempotent
// under multiple close signals for one socket.
func (t *WebSocketTransport) dropConn(c *peerConn, cause *ConnError) {
	if !c.close() {
		return
	}

	t.mu.Lock()
	delete(t.conns, c)
	t.mu.Unlock()

	if peer := c.peerID(); peer != "" && t.registry.remove(peer, c) {
		t.dispatch.emit(event{kind: eventDisconnection, peer: peer})
		t.opts.Metrics.ConnectionClosed(metrics.BackendWebSocket)
	}

	if cause != nil {
		t.log.WithFields(logrus.Fields{
			"function": "dropConn",
			"address":  c.remoteAddr(),
		}).WithError(cause).Warn("connection fault")
		t.dispatch.emit(event{kind: eventError, err: cause})
		t.opts.Metrics.ConnectionError(metrics.BackendWebSocket)
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

// Send writes one binary frame to an identified peer.
func (t *WebSocketTransport) Send(to PeerID, payload []byte) error {
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
		return fmt.Errorf("%w: %q", ErrUnknownPeer, to)
	}
	if err := t.writeFrame(c, opBinary, payload); err != nil {
		return newConnError("send", to, c.remoteAddr(), err)
	}
	t.opts.Metrics.FrameSent(metrics.BackendWebSocket, len(payload))
	return nil
}

// Broadcast writes the payload to every identified peer, best effort.
func (t *WebSocketTransport) Broadcast(payload []byte) int {
	if err := limits.ValidatePayloadSize(len(payload), t.opts.MaxPayload); err != nil {
		return 0
	}
	sent := 0
	for _, c := range t.registry.snapshotConns() {
		if err := t.writeFrame(c, opBinary, payload); err == nil {
			sent++
			t.opts.Metrics.FrameSent(metrics.BackendWebSocket, len(payload))
		}
	}
	return sent
}

func (t *WebSocketTransport) writeFrame(c *peerConn, op wsOpcode, payload []byte) error {
	frame, err := encodeWSFrame(op, payload, c.maskOutbound)
	if err != nil {
		return err
	}
	return c.writeRaw(frame)
}

// Stop closes every connection and the server socket. Safe to call
// repeatedly or before Start; after it returns no further events fire.
func (t *WebSocketTransport) Stop() error {
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
	t.mu.Unlock()

	// Dispatcher first: lingering sockets draining after this point stay
	// silent.
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
	t.registry.clear()
	t.wg.Wait()

	t.log.WithFields(logrus.Fields{"function": "Stop"}).Info("WebSocket transport stopped")
	return nil
}

// emitConnError surfaces a fault that never produced a tracked connection,
// such as a failed upgrade on an accepted socket.
func (t *WebSocketTransport) emitConnError(cause *ConnError) {
	t.log.WithFields(logrus.Fields{
		"function": "emitConnError",
		"address":  cause.Addr,
	}).WithError(cause).Warn("connection fault")
	t.dispatch.emit(event{kind: eventError, err: cause})
	t.opts.Metrics.ConnectionError(metrics.BackendWebSocket)
}

func direction(outbound bool) string {
	if outbound {
		return metrics.DirectionOutbound
	}
	return metrics.DirectionInbound
}

func remoteAddrString(sock net.Conn) string {
	if addr := sock.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
