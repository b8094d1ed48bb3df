package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noisePair completes an IK handshake between a fresh initiator and
// responder, exchanging the two handshake messages directly.
func noisePair(t *testing.T) (*NoiseSession, *NoiseSession) {
	t.Helper()
	initiatorKeys, err := GenerateKeyPair()
	require.NoError(t, err)
	responderKeys, err := GenerateKeyPair()
	require.NoError(t, err)

	initiator, err := NewNoiseInitiator(initiatorKeys, responderKeys.Public)
	require.NoError(t, err)
	responder, err := NewNoiseResponder(responderKeys)
	require.NoError(t, err)

	msg1, err := initiator.WriteHandshake()
	require.NoError(t, err)
	require.NoError(t, responder.ReadHandshake(msg1))

	msg2, err := responder.WriteHandshake()
	require.NoError(t, err)
	require.NoError(t, initiator.ReadHandshake(msg2))

	require.True(t, initiator.Established())
	require.True(t, responder.Established())
	return initiator, responder
}

func TestNoiseHandshakeAndRoundTrip(t *testing.T) {
	initiator, responder := noisePair(t)

	sealed, err := initiator.Seal("", []byte("forward secret"))
	require.NoError(t, err)
	opened, err := responder.Open("", sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("forward secret"), opened)

	// And the reverse direction uses the other cipher state.
	sealed, err = responder.Seal("", []byte("reply"))
	require.NoError(t, err)
	opened, err = initiator.Open("", sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("reply"), opened)
}

func TestNoiseOrderedDelivery(t *testing.T) {
	initiator, responder := noisePair(t)

	first, err := initiator.Seal("", []byte("one"))
	require.NoError(t, err)
	second, err := initiator.Seal("", []byte("two"))
	require.NoError(t, err)

	// In-order opens succeed.
	opened, err := responder.Open("", first)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), opened)
	opened, err = responder.Open("", second)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), opened)
}

func TestNoiseSealBeforeHandshakeFails(t *testing.T) {
	keys, err := GenerateKeyPair()
	require.NoError(t, err)
	responder, err := NewNoiseResponder(keys)
	require.NoError(t, err)

	_, err = responder.Seal("", []byte("x"))
	require.ErrorIs(t, err, ErrHandshakeIncomplete)
	_, err = responder.Open("", []byte("x"))
	require.ErrorIs(t, err, ErrHandshakeIncomplete)
}

func TestNoisePeerStatic(t *testing.T) {
	initiatorKeys, err := GenerateKeyPair()
	require.NoError(t, err)
	responderKeys, err := GenerateKeyPair()
	require.NoError(t, err)

	initiator, err := NewNoiseInitiator(initiatorKeys, responderKeys.Public)
	require.NoError(t, err)
	responder, err := NewNoiseResponder(responderKeys)
	require.NoError(t, err)

	msg1, err := initiator.WriteHandshake()
	require.NoError(t, err)
	require.NoError(t, responder.ReadHandshake(msg1))

	// IK delivers the initiator's static key in the first message.
	remote, err := responder.PeerStatic()
	require.NoError(t, err)
	assert.Equal(t, initiatorKeys.Public, remote)
}

func TestNoiseTamperDetected(t *testing.T) {
	initiator, responder := noisePair(t)

	sealed, err := initiator.Seal("", []byte("payload"))
	require.NoError(t, err)
	sealed[0] ^= 0x80

	_, err = responder.Open("", sealed)
	require.Error(t, err)
}

func TestNoiseHandshakeAfterCompleteRejected(t *testing.T) {
	initiator, _ := noisePair(t)

	_, err := initiator.WriteHandshake()
	require.ErrorIs(t, err, ErrHandshakeComplete)
	require.ErrorIs(t, initiator.ReadHandshake([]byte("late")), ErrHandshakeComplete)
}
