package transport

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConn returns a peerConn over a closed pipe end; registry tests never
// touch the socket.
func testConn(t *testing.T) *peerConn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return newPeerConn(a, false)
}

func TestRegistryInsertLookup(t *testing.T) {
	r := newPeerRegistry()
	c := testConn(t)

	require.Nil(t, r.insert("A", c))

	got, ok := r.lookup("A")
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, r.size())
}

// TestRegistryReplace covers a reconnecting peer: the newer connection takes
// the entry, and the superseded one is handed back for explicit closure.
func TestRegistryReplace(t *testing.T) {
	r := newPeerRegistry()
	old := testConn(t)
	replacement := testConn(t)

	require.Nil(t, r.insert("A", old))
	superseded := r.insert("A", replacement)
	assert.Same(t, old, superseded)

	got, ok := r.lookup("A")
	require.True(t, ok)
	assert.Same(t, replacement, got)
	assert.Equal(t, 1, r.size())
}

// TestRegistryRemoveComparesConnection verifies teardown of a superseded
// connection cannot evict its replacement.
func TestRegistryRemoveComparesConnection(t *testing.T) {
	r := newPeerRegistry()
	old := testConn(t)
	replacement := testConn(t)

	r.insert("A", old)
	r.insert("A", replacement)

	// The old socket's teardown fires after replacement.
	assert.False(t, r.remove("A", old))
	_, ok := r.lookup("A")
	assert.True(t, ok)

	assert.True(t, r.remove("A", replacement))
	_, ok = r.lookup("A")
	assert.False(t, ok)
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	r := newPeerRegistry()
	c := testConn(t)
	r.insert("A", c)

	assert.True(t, r.remove("A", c))
	assert.False(t, r.remove("A", c))
	assert.False(t, r.remove("A", c))
}

func TestRegistrySnapshotAndClear(t *testing.T) {
	r := newPeerRegistry()
	r.insert("A", testConn(t))
	r.insert("B", testConn(t))

	peers := r.snapshot()
	assert.ElementsMatch(t, []PeerID{"A", "B"}, peers)
	assert.Len(t, r.snapshotConns(), 2)

	cleared := r.clear()
	assert.Len(t, cleared, 2)
	assert.Equal(t, 0, r.size())
	assert.Empty(t, r.snapshot())
}

// TestRegistryConcurrentMutation exercises insert/remove under contention;
// the race detector is the real assertion here.
func TestRegistryConcurrentMutation(t *testing.T) {
	r := newPeerRegistry()
	conns := make([]*peerConn, 8)
	for i := range conns {
		conns[i] = testConn(t)
	}

	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func(i int, c *peerConn) {
			defer wg.Done()
			peer := PeerID(rune('A' + i%4))
			r.insert(peer, c)
			r.lookup(peer)
			r.remove(peer, c)
		}(i, c)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.size(), 4)
}
