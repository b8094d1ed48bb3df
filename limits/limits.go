// Package limits provides centralized wire size limits for peerwire transports.
// This ensures consistent ceiling enforcement across the WebSocket and TCP backends.
package limits

import (
	"errors"
	"fmt"
)

const (
	// DefaultMaxPayload is the default ceiling for a single frame payload (1 MiB).
	// A remote declaring a larger frame is disconnected before the payload is
	// allocated, bounding memory against a misbehaving peer.
	DefaultMaxPayload = 1024 * 1024

	// MaxHandshakeBytes caps the HTTP upgrade head (request or response line
	// plus headers) read during the WebSocket opening handshake. Upgrade heads
	// in practice fit in a few hundred bytes; 8 KiB leaves generous room for
	// extra headers while bounding a header flood.
	MaxHandshakeBytes = 8 * 1024

	// MaxAddressLength caps a dial target string before parsing. Hostnames are
	// limited to 253 characters by DNS; anything near this limit is garbage.
	MaxAddressLength = 512
)

var (
	// ErrPayloadTooLarge indicates a frame payload exceeds the configured ceiling
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrHandshakeTooLarge indicates an upgrade head exceeded MaxHandshakeBytes
	ErrHandshakeTooLarge = errors.New("handshake head too large")

	// ErrAddressTooLong indicates a dial target exceeds MaxAddressLength
	ErrAddressTooLong = errors.New("address too long")
)

// EffectiveMaxPayload resolves a configured ceiling, substituting
// DefaultMaxPayload when the configured value is zero or negative.
func EffectiveMaxPayload(configured int) int {
	if configured <= 0 {
		return DefaultMaxPayload
	}
	return configured
}

// ValidatePayloadSize validates a payload length against the specified ceiling.
// A ceiling of zero or below means DefaultMaxPayload. Zero-length payloads are
// valid: the transport layer carries opaque bytes and empty frames are legal.
func ValidatePayloadSize(size, max int) error {
	max = EffectiveMaxPayload(max)
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrPayloadTooLarge, size)
	}
	if size > max {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, size, max)
	}
	return nil
}

// ValidateDeclaredLength validates a length declared by a remote peer before
// any allocation happens. Declared lengths arrive as unsigned 32- or 64-bit
// values, so the check runs on uint64 to reject values that would overflow int.
func ValidateDeclaredLength(declared uint64, max int) error {
	max = EffectiveMaxPayload(max)
	if declared > uint64(max) {
		return fmt.Errorf("%w: declared length %d exceeds limit %d", ErrPayloadTooLarge, declared, max)
	}
	return nil
}

// ValidateAddress validates a dial target string length.
func ValidateAddress(addr string) error {
	if len(addr) > MaxAddressLength {
		return fmt.Errorf("%w: %d characters exceeds limit %d", ErrAddressTooLong, len(addr), MaxAddressLength)
	}
	return nil
}
