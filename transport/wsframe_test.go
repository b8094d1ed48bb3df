package transport

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/peerwire/limits"
)

// TestWSFrameRoundTrip encodes and decodes payloads across every length
// encoding boundary, in both masking directions.
func TestWSFrameRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 125, 126, 127, 65535, 65536, 70000}

	for _, size := range sizes {
		for _, masked := range []bool{true, false} {
			payload := make([]byte, size)
			for i := range payload {
				payload[i] = byte(i * 31)
			}

			encoded, err := encodeWSFrame(opBinary, payload, masked)
			require.NoError(t, err)

			frame, consumed, err := decodeWSFrame(encoded, masked, limits.DefaultMaxPayload)
			require.NoError(t, err, "size=%d masked=%v", size, masked)
			assert.Equal(t, len(encoded), consumed)
			assert.Equal(t, opBinary, frame.opcode)
			assert.True(t, bytes.Equal(payload, frame.payload), "size=%d masked=%v", size, masked)
		}
	}
}

// TestWSFrameLengthEncodings verifies the header layout chosen for each
// payload size class.
func TestWSFrameLengthEncodings(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		headerLen int
		indicator byte
	}{
		{"small", 125, 2, 125},
		{"extended16 low", 126, 4, lenIndicator16},
		{"extended16 high", 65535, 4, lenIndicator16},
		{"extended64", 65536, 10, lenIndicator64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := encodeWSFrame(opBinary, make([]byte, tt.size), false)
			require.NoError(t, err)

			assert.Equal(t, tt.headerLen+tt.size, len(encoded))
			assert.Equal(t, byte(wsFinBit|byte(opBinary)), encoded[0])
			assert.Equal(t, tt.indicator, encoded[1]&0x7F)
			assert.Zero(t, encoded[1]&wsMaskBit)
		})
	}
}

func TestMaskPayloadRoundTrip(t *testing.T) {
	key := []byte{0xA1, 0x02, 0xF3, 0x44}
	for _, size := range []int{0, 1, 3, 4, 5, 8, 1000} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}
		original := append([]byte{}, payload...)

		maskPayload(payload, key)
		if size > 0 {
			assert.NotEqual(t, original, payload, "size=%d", size)
		}
		maskPayload(payload, key)
		assert.Equal(t, original, payload, "size=%d", size)
	}
}

// TestWSFrameDecodeIncremental feeds an encoded frame one byte at a time; the
// decoder must report errNeedMoreData at every prefix and succeed only on the
// full buffer.
func TestWSFrameDecodeIncremental(t *testing.T) {
	payload := []byte("incremental reassembly")
	encoded, err := encodeWSFrame(opBinary, payload, true)
	require.NoError(t, err)

	for end := 0; end < len(encoded); end++ {
		_, _, err := decodeWSFrame(encoded[:end], true, limits.DefaultMaxPayload)
		require.ErrorIs(t, err, errNeedMoreData, "prefix length %d", end)
	}

	frame, consumed, err := decodeWSFrame(encoded, true, limits.DefaultMaxPayload)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)
	assert.Equal(t, payload, frame.payload)
}

// TestWSFrameDecodeTail verifies the decoder consumes exactly one frame and
// leaves trailing bytes for the next pass.
func TestWSFrameDecodeTail(t *testing.T) {
	first, err := encodeWSFrame(opBinary, []byte("first"), false)
	require.NoError(t, err)
	second, err := encodeWSFrame(opText, []byte("second"), false)
	require.NoError(t, err)

	buf := append(append([]byte{}, first...), second...)

	frame, consumed, err := decodeWSFrame(buf, false, limits.DefaultMaxPayload)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), frame.payload)

	frame, consumed2, err := decodeWSFrame(buf[consumed:], false, limits.DefaultMaxPayload)
	require.NoError(t, err)
	assert.Equal(t, opText, frame.opcode)
	assert.Equal(t, []byte("second"), frame.payload)
	assert.Equal(t, len(buf), consumed+consumed2)
}

// TestWSFrameOversizeRejectedBeforeAllocation crafts a header declaring a
// huge payload with almost no bytes behind it. The decoder must reject it
// from the header alone rather than wait for (or allocate) the declared
// size.
func TestWSFrameOversizeRejectedBeforeAllocation(t *testing.T) {
	header := make([]byte, 10)
	header[0] = wsFinBit | byte(opBinary)
	header[1] = lenIndicator64
	binary.BigEndian.PutUint64(header[2:], 1<<31)

	_, _, err := decodeWSFrame(header, false, 1024)
	require.ErrorIs(t, err, limits.ErrPayloadTooLarge)
}

func TestWSFrameUpper32BitsRejected(t *testing.T) {
	header := make([]byte, 10)
	header[0] = wsFinBit | byte(opBinary)
	header[1] = lenIndicator64
	binary.BigEndian.PutUint64(header[2:], 1<<33)

	_, _, err := decodeWSFrame(header, false, limits.DefaultMaxPayload)
	require.ErrorIs(t, err, limits.ErrPayloadTooLarge)
}

func TestWSFrameFatalRejections(t *testing.T) {
	unmasked, err := encodeWSFrame(opBinary, []byte("x"), false)
	require.NoError(t, err)
	masked, err := encodeWSFrame(opBinary, []byte("x"), true)
	require.NoError(t, err)

	fragmented := append([]byte{}, unmasked...)
	fragmented[0] &^= wsFinBit

	unknownOp := append([]byte{}, unmasked...)
	unknownOp[0] = wsFinBit | 0x3

	tests := []struct {
		name         string
		buf          []byte
		expectMasked bool
		want         error
	}{
		{"fragmented", fragmented, false, ErrFragmentedFrame},
		{"unknown opcode", unknownOp, false, ErrUnknownOpcode},
		{"mask required", unmasked, true, ErrMaskRequired},
		{"mask forbidden", masked, false, ErrMaskForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeWSFrame(tt.buf, tt.expectMasked, limits.DefaultMaxPayload)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWSFrameControlOpcodes(t *testing.T) {
	for _, op := range []wsOpcode{opText, opBinary, opClose, opPing, opPong} {
		encoded, err := encodeWSFrame(op, []byte("ctl"), false)
		require.NoError(t, err)

		frame, _, err := decodeWSFrame(encoded, false, limits.DefaultMaxPayload)
		require.NoError(t, err)
		assert.Equal(t, op, frame.opcode)
		assert.Equal(t, []byte("ctl"), frame.payload)
	}
}
