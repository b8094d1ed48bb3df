package transport

import "sync"

// peerRegistry maps logical identities to connections: at most one entry per
// PeerID per transport instance. It is owned exclusively by its transport;
// all mutation happens under the internal mutex so concurrent identification
// attempts and teardowns never interleave.
type peerRegistry struct {
	mu    sync.Mutex
	peers map[PeerID]*peerConn
}

func newPeerRegistry() *peerRegistry {
	return &peerRegistry{peers: make(map[PeerID]*peerConn)}
}

// insert registers a connection under a peer identity. When the identity is
// already registered the old entry is replaced and returned so the caller
// can close the superseded connection.
func (r *peerRegistry) insert(peer PeerID, conn *peerConn) (superseded *peerConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	superseded = r.peers[peer]
	r.peers[peer] = conn
	return superseded
}

// lookup resolves a peer identity to its connection.
func (r *peerRegistry) lookup(peer PeerID) (*peerConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.peers[peer]
	return conn, ok
}

// remove deletes the entry for a peer, but only while it still points at the
// given connection: teardown of a superseded socket must not evict its
// replacement. Removal is idempotent; it reports whether an entry was
// deleted.
func (r *peerRegistry) remove(peer PeerID, conn *peerConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.peers[peer]; ok && current == conn {
		delete(r.peers, peer)
		return true
	}
	return false
}

// snapshot returns the currently registered identities.
func (r *peerRegistry) snapshot() []PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]PeerID, 0, len(r.peers))
	for peer := range r.peers {
		peers = append(peers, peer)
	}
	return peers
}

// snapshotConns returns the currently registered connections.
func (r *peerRegistry) snapshotConns() []*peerConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]*peerConn, 0, len(r.peers))
	for _, conn := range r.peers {
		conns = append(conns, conn)
	}
	return conns
}

// clear empties the registry and returns what it held.
func (r *peerRegistry) clear() []*peerConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]*peerConn, 0, len(r.peers))
	for _, conn := range r.peers {
		conns = append(conns, conn)
	}
	r.peers = make(map[PeerID]*peerConn)
	return conns
}

// size returns the number of registered peers.
func (r *peerRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
