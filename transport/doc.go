// Package transport provides the peerwire messaging transport layer:
// bidirectional, framed byte exchange between a local peer and remote peers
// over two wire protocols, a WebSocket-compatible protocol (RFC 6455 subset,
// implemented here without a protocol library) and a raw length-prefixed TCP
// protocol.
//
// # Architecture
//
// The core abstraction is the Transport interface, satisfied by both
// backends:
//
//	type Transport interface {
//	    Start() error
//	    Stop() error
//	    Send(to PeerID, payload []byte) error
//	    LocalID() PeerID
//	    ListenAddresses() []string
//	    ConnectedPeers() []PeerID
//	    Broadcast(payload []byte) int
//	    OnConnection(ConnectionHandler)
//	    OnDisconnection(DisconnectionHandler)
//	    OnFrame(FrameHandler)
//	    OnError(ErrorHandler)
//	}
//
// Every connection, on either backend, opens with an application-level
// identity handshake: the first payload unit must be the UTF-8 JSON hello
//
//	{"t":"hello","peerId":"<string>"}
//
// Only after a valid hello is the connection registered under its remote
// PeerID and the peer addressable through Send. The registry holds at most
// one connection per PeerID; a reconnecting peer replaces and closes its
// superseded connection. Outbound TCP dials to one address are collapsed by
// a dial ledger so concurrent senders share a single attempt.
//
// # WebSocket Backend
//
// Server mode binds a raw listener and performs the HTTP upgrade per
// connection; client mode sends a hand-built upgrade request and verifies
// the Sec-WebSocket-Accept value. Client-to-server frames are always masked,
// server-to-client frames never. Ping frames are answered with Pong
// automatically; Close tears the connection down.
//
//	server, err := NewWebSocketTransport(WebSocketOptions{
//	    LocalID:    "A",
//	    ListenHost: "127.0.0.1",
//	    Path:       "/chat",
//	})
//
//	client, err := NewWebSocketTransport(WebSocketOptions{
//	    LocalID: "B",
//	    URL:     "ws://127.0.0.1:9000/chat",
//	})
//
// # TCP Backend
//
// No wire handshake; each unit is a 4-byte big-endian length prefix plus
// payload. Send accepts an identified PeerID or a dial address
// (tcp://host:port or host:port).
//
//	tcp, err := NewTCPTransport(TCPOptions{LocalID: "A", ListenHost: "127.0.0.1"})
//
// # Events and Errors
//
// All asynchronous effects surface as events delivered by one dispatcher
// goroutine per instance, preserving per-connection receipt order.
// Per-connection protocol faults emit an error event and tear down only that
// connection; precondition failures (not started, unknown peer, bad address,
// oversized payload) return synchronously from the call that caused them.
//
// The layer never interprets payload bytes: frames are delivered opaque, and
// encryption is the caller's concern.
package transport
