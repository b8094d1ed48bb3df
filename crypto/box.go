package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/box"

	"github.com/opd-ai/peerwire/interfaces"
)

// nonceSize is the NaCl box nonce length, prepended to every sealed payload.
const nonceSize = 24

// Errors returned by BoxSealer.
var (
	// ErrUnknownSealPeer indicates no public key is registered for the peer
	ErrUnknownSealPeer = errors.New("no public key for peer")

	// ErrOpenFailed indicates authentication failed while opening a payload
	ErrOpenFailed = errors.New("payload authentication failed")
)

// BoxSealer protects payloads with NaCl crypto_box, keyed by peer identity.
// It implements interfaces.PayloadSecurer. Sealed payloads carry their
// random nonce as a 24-byte prefix, so no state beyond the keyring is shared
// between the two sides.
type BoxSealer struct {
	mu    sync.RWMutex
	keys  *KeyPair
	peers map[string][32]byte
}

// compile-time conformance check
var _ interfaces.PayloadSecurer = (*BoxSealer)(nil)

// NewBoxSealer creates a sealer using the given local key pair.
func NewBoxSealer(keys *KeyPair) *BoxSealer {
	return &BoxSealer{
		keys:  keys,
		peers: make(map[string][32]byte),
	}
}

// AddPeer registers a peer's public key. Sealing to or opening from a peer
// requires its key to be registered first.
func (s *BoxSealer) AddPeer(peer string, publicKey [32]byte) {
	s.mu.Lock()
	s.peers[peer] = publicKey
	s.mu.Unlock()
}

// RemovePeer forgets a peer's public key. Idempotent.
func (s *BoxSealer) RemovePeer(peer string) {
	s.mu.Lock()
	delete(s.peers, peer)
	s.mu.Unlock()
}

// PublicKey returns the local public key, for exchange with peers.
func (s *BoxSealer) PublicKey() [32]byte {
	return s.keys.Public
}

// Seal protects a plaintext payload for the named peer. The result is
// nonce || box and is safe to hand to a transport as an opaque frame.
func (s *BoxSealer) Seal(peer string, plaintext []byte) ([]byte, error) {
	peerKey, err := s.peerKey(peer)
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := box.Seal(nonce[:], plaintext, &nonce, &peerKey, &s.keys.Private)
	return sealed, nil
}

// Open recovers a payload sealed by the named peer.
func (s *BoxSealer) Open(peer string, sealed []byte) ([]byte, error) {
	peerKey, err := s.peerKey(peer)
	if err != nil {
		return nil, err
	}
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("%w: short payload", ErrOpenFailed)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := box.Open(nil, sealed[nonceSize:], &nonce, &peerKey, &s.keys.Private)
	if !ok {
		return nil, fmt.Errorf("%w: peer %q", ErrOpenFailed, peer)
	}
	return plaintext, nil
}

func (s *BoxSealer) peerKey(peer string) ([32]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.peers[peer]
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: %q", ErrUnknownSealPeer, peer)
	}
	return key, nil
}
