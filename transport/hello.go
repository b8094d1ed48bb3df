package transport

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// helloType is the required value of the "t" field in a hello message.
const helloType = "hello"

// helloMessage is the mandatory first payload unit on every connection,
// regardless of backend. The wire format is UTF-8 JSON:
//
//	{"t":"hello","peerId":"<string>"}
type helloMessage struct {
	T      string `json:"t"`
	PeerID string `json:"peerId"`
}

// encodeHello serializes the local identity as a hello payload.
func encodeHello(local PeerID) []byte {
	data, err := json.Marshal(helloMessage{T: helloType, PeerID: string(local)})
	if err != nil {
		// Two string fields cannot fail to marshal.
		panic(err)
	}
	return data
}

// parseHello validates a first payload unit as a hello and extracts the
// remote identity. Any failure wraps ErrInvalidHello and is fatal to the
// connection that produced it.
func parseHello(data []byte) (PeerID, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrInvalidHello)
	}

	var msg helloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHello, err)
	}
	if msg.T != helloType {
		return "", fmt.Errorf("%w: unexpected type %q", ErrInvalidHello, msg.T)
	}
	if msg.PeerID == "" {
		return "", fmt.Errorf("%w: missing peerId", ErrInvalidHello)
	}

	return PeerID(msg.PeerID), nil
}
