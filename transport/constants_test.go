package transport

import "time"

// Common test constants used across the transport test files.

const (
	// testLocalhost is the standard IPv4 loopback address.
	testLocalhost = "127.0.0.1"

	// testEventTimeout bounds a wait for one asynchronous event.
	testEventTimeout = 5 * time.Second

	// testQuietWindow is how long a test watches for events that must not
	// fire.
	testQuietWindow = 200 * time.Millisecond

	// testHandshakeTimeout is a short handshake bound so negative-path tests
	// finish quickly.
	testHandshakeTimeout = 2 * time.Second
)
