package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/flynn/noise"

	"github.com/opd-ai/peerwire/interfaces"
)

// Errors returned by NoiseSession.
var (
	// ErrHandshakeIncomplete indicates Seal or Open before the handshake
	// finished
	ErrHandshakeIncomplete = errors.New("noise handshake not complete")

	// ErrHandshakeComplete indicates a handshake step after completion
	ErrHandshakeComplete = errors.New("noise handshake already complete")
)

// NoiseSession is a Noise-IK session between two peers, providing mutual
// authentication and forward secrecy. The two-message IK handshake is
// carried as ordinary transport frames by the caller; once complete the
// session implements interfaces.PayloadSecurer.
//
// Messages must be opened in the order they were sealed: the underlying
// cipher state nonces advance with every operation, which matches the
// transport's per-connection ordering guarantee.
type NoiseSession struct {
	mu        sync.Mutex
	handshake *noise.HandshakeState
	send      *noise.CipherState
	recv      *noise.CipherState
	initiator bool
}

var _ interfaces.PayloadSecurer = (*NoiseSession)(nil)

// NewNoiseInitiator creates the initiating side of an IK handshake. The
// responder's static public key must be known in advance; that is what
// authenticates the responder.
func NewNoiseInitiator(static *KeyPair, responderPublic [32]byte) (*NoiseSession, error) {
	hs, err := newHandshakeState(static, responderPublic[:], true)
	if err != nil {
		return nil, err
	}
	return &NoiseSession{handshake: hs, initiator: true}, nil
}

// NewNoiseResponder creates the responding side of an IK handshake. The
// initiator's identity arrives in its first message.
func NewNoiseResponder(static *KeyPair) (*NoiseSession, error) {
	hs, err := newHandshakeState(static, nil, false)
	if err != nil {
		return nil, err
	}
	return &NoiseSession{handshake: hs, initiator: false}, nil
}

func newHandshakeState(static *KeyPair, peerStatic []byte, initiator bool) (*noise.HandshakeState, error) {
	cs := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cs,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeIK,
		Initiator:   initiator,
		StaticKeypair: noise.DHKey{
			Private: static.Private[:],
			Public:  static.Public[:],
		},
		PeerStatic: peerStatic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating handshake state: %w", err)
	}
	return hs, nil
}

// WriteHandshake produces the next outbound handshake message. The IK
// pattern needs one from the initiator and one from the responder.
func (s *NoiseSession) WriteHandshake() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.established() {
		return nil, ErrHandshakeComplete
	}

	msg, cs1, cs2, err := s.handshake.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("writing handshake message: %w", err)
	}
	s.adoptCipherStates(cs1, cs2)
	return msg, nil
}

// ReadHandshake consumes an inbound handshake message.
func (s *NoiseSession) ReadHandshake(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.established() {
		return ErrHandshakeComplete
	}

	_, cs1, cs2, err := s.handshake.ReadMessage(nil, msg)
	if err != nil {
		return fmt.Errorf("reading handshake message: %w", err)
	}
	s.adoptCipherStates(cs1, cs2)
	return nil
}

// adoptCipherStates installs the transport cipher states once the final
// handshake message is processed. The first state carries initiator to
// responder traffic.
func (s *NoiseSession) adoptCipherStates(cs1, cs2 *noise.CipherState) {
	if cs1 == nil || cs2 == nil {
		return
	}
	if s.initiator {
		s.send, s.recv = cs1, cs2
	} else {
		s.send, s.recv = cs2, cs1
	}
}

// Established reports whether the handshake has completed.
func (s *NoiseSession) Established() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.established()
}

func (s *NoiseSession) established() bool {
	return s.send != nil && s.recv != nil
}

// PeerStatic returns the remote static public key learned during the
// handshake, for binding the session to a transport PeerID.
func (s *NoiseSession) PeerStatic() ([32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key [32]byte
	remote := s.handshake.PeerStatic()
	if len(remote) != len(key) {
		return key, ErrHandshakeIncomplete
	}
	copy(key[:], remote)
	return key, nil
}

// Seal encrypts a payload under the session's sending cipher state. The peer
// argument is unused: a NoiseSession is already bound to exactly one peer.
func (s *NoiseSession) Seal(_ string, plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.established() {
		return nil, ErrHandshakeIncomplete
	}
	sealed, err := s.send.Encrypt(nil, nil, plaintext)
	if err != nil {
		return nil, fmt.Errorf("sealing payload: %w", err)
	}
	return sealed, nil
}

// Open decrypts a payload under the session's receiving cipher state.
func (s *NoiseSession) Open(_ string, sealed []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.established() {
		return nil, ErrHandshakeIncomplete
	}
	plaintext, err := s.recv.Decrypt(nil, nil, sealed)
	if err != nil {
		return nil, fmt.Errorf("opening payload: %w", err)
	}
	return plaintext, nil
}
