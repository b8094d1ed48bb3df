package transport

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/peerwire/limits"
)

// wsOpcode is the 4-bit opcode of a WebSocket frame. Only the subset used by
// this transport is supported; continuation frames are rejected.
type wsOpcode byte

const (
	opText   wsOpcode = 0x1
	opBinary wsOpcode = 0x2
	opClose  wsOpcode = 0x8
	opPing   wsOpcode = 0x9
	opPong   wsOpcode = 0xA
)

// validOpcode reports whether the transport understands the opcode.
func validOpcode(op wsOpcode) bool {
	switch op {
	case opText, opBinary, opClose, opPing, opPong:
		return true
	}
	return false
}

// wsFrame is one decoded WebSocket frame. The fin bit is always set on
// frames this codec accepts, so it is not carried.
type wsFrame struct {
	opcode  wsOpcode
	payload []byte
}

// errNeedMoreData signals an incomplete frame at the end of the accumulation
// buffer; the caller should read more bytes and retry. It is never fatal.
var errNeedMoreData = errors.New("need more data")

const (
	wsFinBit  = 0x80
	wsMaskBit = 0x80

	// lenIndicator16 and lenIndicator64 select the extended length encodings.
	lenIndicator16 = 126
	lenIndicator64 = 127

	// len16Threshold is the smallest payload requiring the 16-bit extended
	// length; len64Threshold the smallest requiring the 64-bit one.
	len16Threshold = 126
	len64Threshold = 65536
)

// encodeWSFrame builds a complete frame: fin always set, payload masked with
// a fresh random key when masked is true (client to server direction).
func encodeWSFrame(op wsOpcode, payload []byte, masked bool) ([]byte, error) {
	n := len(payload)

	headerLen := 2
	switch {
	case n >= len64Threshold:
		headerLen += 8
	case n >= len16Threshold:
		headerLen += 2
	}
	if masked {
		headerLen += 4
	}

	buf := make([]byte, headerLen+n)
	buf[0] = wsFinBit | byte(op)

	pos := 2
	switch {
	case n >= len64Threshold:
		buf[1] = lenIndicator64
		binary.BigEndian.PutUint64(buf[2:10], uint64(n))
		pos = 10
	case n >= len16Threshold:
		buf[1] = lenIndicator16
		binary.BigEndian.PutUint16(buf[2:4], uint16(n))
		pos = 4
	default:
		buf[1] = byte(n)
	}

	if masked {
		buf[1] |= wsMaskBit
		key := buf[pos : pos+4]
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating mask key: %w", err)
		}
		pos += 4
		copy(buf[pos:], payload)
		maskPayload(buf[pos:], key)
	} else {
		copy(buf[pos:], payload)
	}

	return buf, nil
}

// decodeWSFrame incrementally parses the front of an accumulation buffer.
// It returns the decoded frame and the number of bytes consumed, or
// errNeedMoreData when the buffer does not yet hold a whole frame. Any other
// error is fatal to the connection: fragmented frames, a mask bit differing
// from the expected direction, a declared length over the ceiling (checked
// before any payload allocation), or an unknown opcode.
func decodeWSFrame(buf []byte, expectMasked bool, maxPayload int) (*wsFrame, int, error) {
	if len(buf) < 2 {
		return nil, 0, errNeedMoreData
	}

	if buf[0]&wsFinBit == 0 {
		return nil, 0, ErrFragmentedFrame
	}
	op := wsOpcode(buf[0] & 0x0F)
	if !validOpcode(op) {
		return nil, 0, fmt.Errorf("%w: 0x%X", ErrUnknownOpcode, byte(op))
	}

	masked := buf[1]&wsMaskBit != 0
	if masked && !expectMasked {
		return nil, 0, ErrMaskForbidden
	}
	if !masked && expectMasked {
		return nil, 0, ErrMaskRequired
	}

	var declared uint64
	pos := 2
	switch indicator := buf[1] & 0x7F; indicator {
	case lenIndicator16:
		if len(buf) < 4 {
			return nil, 0, errNeedMoreData
		}
		declared = uint64(binary.BigEndian.Uint16(buf[2:4]))
		pos = 4
	case lenIndicator64:
		if len(buf) < 10 {
			return nil, 0, errNeedMoreData
		}
		declared = binary.BigEndian.Uint64(buf[2:10])
		if declared>>32 != 0 {
			return nil, 0, fmt.Errorf("%w: 64-bit length with non-zero upper half", limits.ErrPayloadTooLarge)
		}
		pos = 10
	default:
		declared = uint64(indicator)
	}

	if err := limits.ValidateDeclaredLength(declared, maxPayload); err != nil {
		return nil, 0, err
	}
	n := int(declared)

	var key []byte
	if masked {
		if len(buf) < pos+4 {
			return nil, 0, errNeedMoreData
		}
		key = buf[pos : pos+4]
		pos += 4
	}

	if len(buf) < pos+n {
		return nil, 0, errNeedMoreData
	}

	payload := make([]byte, n)
	copy(payload, buf[pos:pos+n])
	if masked {
		maskPayload(payload, key)
	}

	return &wsFrame{opcode: op, payload: payload}, pos + n, nil
}

// maskPayload XORs the payload in place with the 4-byte key, cycling the key
// every 4 bytes. Masking and unmasking are the same operation.
func maskPayload(payload, key []byte) {
	for i := range payload {
		payload[i] ^= key[i%4]
	}
}
