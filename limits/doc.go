// Package limits provides centralized wire size limits and validation
// functions for peerwire transports. The package ensures the WebSocket and
// TCP backends enforce the same ceilings at every point where a remote peer
// declares a length.
//
// # Size Hierarchy
//
// The package defines the limits that bound untrusted input:
//
//   - DefaultMaxPayload (1 MiB): the default ceiling for a single frame
//     payload on either backend. Transports accept a per-instance override;
//     zero means this default.
//
//   - MaxHandshakeBytes (8 KiB): the maximum HTTP head accepted during the
//     WebSocket opening handshake, on both the server (request) and client
//     (response) side.
//
//   - MaxAddressLength (512): the maximum dial target string accepted before
//     address parsing runs.
//
// # Validation Functions
//
// Declared lengths from the wire must be validated before allocation:
//
//	if err := limits.ValidateDeclaredLength(declared, maxPayload); err != nil {
//	    // fatal to the connection; no payload buffer was allocated
//	}
//
// Outbound payloads are validated symmetrically with ValidatePayloadSize so a
// local caller cannot push a frame the remote side is required to reject.
//
// # Security Considerations
//
// Every limit here exists to bound memory against a misbehaving remote. The
// declared-length check runs on the raw unsigned wire value so lengths that
// would overflow the platform int are rejected rather than truncated.
package limits
