package transport

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComputeAccept checks the derivation against the worked example in
// RFC 6455 section 1.3.
func TestComputeAccept(t *testing.T) {
	accept := computeAccept("dGhlIHNhbXBsZSBub25jZQ==")
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", accept)
}

func TestParseHTTPHead(t *testing.T) {
	head := []byte("GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: WebSocket\r\n" +
		"Sec-WebSocket-Key:  abc123  \r\n\r\n")

	firstLine, headers := parseHTTPHead(head)
	assert.Equal(t, "GET /chat HTTP/1.1", firstLine)
	assert.Equal(t, "example.com", headers["host"])
	assert.Equal(t, "WebSocket", headers["upgrade"])
	assert.Equal(t, "abc123", headers["sec-websocket-key"])
}

// upgradePair runs serverUpgrade against a raw client request over a pipe
// and returns the server result plus everything the client read.
func upgradePair(t *testing.T, request string, wantPath string) (leftover []byte, upgradeErr error, response string) {
	t.Helper()

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	type result struct {
		leftover []byte
		err      error
	}
	done := make(chan result, 1)
	go func() {
		l, err := serverUpgrade(serverSide, wantPath)
		done <- result{l, err}
		serverSide.Close()
	}()

	_, err := clientSide.Write([]byte(request))
	require.NoError(t, err)

	var sb strings.Builder
	buf := make([]byte, 1024)
	for {
		n, err := clientSide.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}

	r := <-done
	return r.leftover, r.err, sb.String()
}

func TestServerUpgradeSuccess(t *testing.T) {
	request := "GET /chat HTTP/1.1\r\n" +
		"Host: 127.0.0.1\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n" +
		"EXTRA"

	leftover, err, response := upgradePair(t, request, "/chat")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(response, "HTTP/1.1 101 Switching Protocols\r\n"))
	assert.Contains(t, response, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n")
	// Bytes past the head belong to the frame stream.
	assert.Equal(t, []byte("EXTRA"), leftover)
}

func TestServerUpgradeWrongPath(t *testing.T) {
	request := "GET /other HTTP/1.1\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"

	_, err, response := upgradePair(t, request, "/chat")
	require.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, response, "404 Not Found")
}

func TestServerUpgradeMissingKey(t *testing.T) {
	request := "GET /chat HTTP/1.1\r\n" +
		"Upgrade: websocket\r\n\r\n"

	_, err, response := upgradePair(t, request, "/chat")
	require.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, response, "400 Bad Request")
}

func TestServerUpgradeNotGET(t *testing.T) {
	request := "POST /chat HTTP/1.1\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"

	_, err, _ := upgradePair(t, request, "/chat")
	require.ErrorIs(t, err, ErrHandshakeFailed)
}

// TestClientUpgradeSuccess drives clientUpgrade against a scripted server
// that answers with the correctly computed accept value.
func TestClientUpgradeSuccess(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go func() {
		head, _, err := readHTTPHead(serverSide)
		if err != nil {
			return
		}
		_, headers := parseHTTPHead(head)
		response := "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + computeAccept(headers["sec-websocket-key"]) + "\r\n\r\n" +
			"TAIL"
		_, _ = serverSide.Write([]byte(response))
		serverSide.Close()
	}()

	leftover, err := clientUpgrade(clientSide, "127.0.0.1:9000", "/chat")
	require.NoError(t, err)
	assert.Equal(t, []byte("TAIL"), leftover)
}

func TestClientUpgradeRejectsBadStatus(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go func() {
		_, _, _ = readHTTPHead(serverSide)
		_, _ = serverSide.Write([]byte("HTTP/1.1 403 Forbidden\r\n\r\n"))
		serverSide.Close()
	}()

	_, err := clientUpgrade(clientSide, "127.0.0.1:9000", "/chat")
	require.ErrorIs(t, err, ErrHandshakeFailed)
}

func TestClientUpgradeRejectsWrongAccept(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go func() {
		_, _, _ = readHTTPHead(serverSide)
		response := "HTTP/1.1 101 Switching Protocols\r\n" +
			"Sec-WebSocket-Accept: bm90IHRoZSByaWdodCB2YWx1ZQ==\r\n\r\n"
		_, _ = serverSide.Write([]byte(response))
		serverSide.Close()
	}()

	_, err := clientUpgrade(clientSide, "127.0.0.1:9000", "/chat")
	require.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, err.Error(), "accept value mismatch")
}
