package transport

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net"
	"strings"

	"github.com/opd-ai/peerwire/limits"
)

// wsMagicGUID is the fixed GUID the accept value is derived from (RFC 6455).
const wsMagicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// headerTerminator ends an HTTP request or response head.
var headerTerminator = []byte("\r\n\r\n")

// computeAccept derives the Sec-WebSocket-Accept value for a client key.
func computeAccept(key string) string {
	sum := sha1.Sum([]byte(key + wsMagicGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// generateClientKey produces the random 16-byte base64 Sec-WebSocket-Key for
// a client handshake.
func generateClientKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating websocket key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// readHTTPHead reads from the socket until the header terminator, bounded by
// limits.MaxHandshakeBytes. It returns the head (terminator included) and any
// bytes already consumed past it; the caller pushes the leftover back into
// the connection's accumulation buffer before frame parsing starts.
func readHTTPHead(conn net.Conn) (head, leftover []byte, err error) {
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 512)

	for {
		if idx := bytes.Index(buf, headerTerminator); idx >= 0 {
			end := idx + len(headerTerminator)
			return buf[:end], buf[end:], nil
		}
		if len(buf) >= limits.MaxHandshakeBytes {
			return nil, nil, limits.ErrHandshakeTooLarge
		}

		n, readErr := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			return nil, nil, fmt.Errorf("reading handshake: %w", readErr)
		}
	}
}

// parseHTTPHead splits a head into its first line and a lower-cased header
// map. Header values keep their original case; duplicate headers keep the
// first occurrence.
func parseHTTPHead(head []byte) (firstLine string, headers map[string]string) {
	headers = make(map[string]string)
	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 {
		return "", headers
	}
	firstLine = lines[0]
	for _, line := range lines[1:] {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := headers[key]; !dup {
			headers[key] = strings.TrimSpace(value)
		}
	}
	return firstLine, headers
}

// serverUpgrade performs the server side of the opening handshake on a
// freshly accepted socket: parse the request head, validate the path and the
// upgrade headers, respond 101 with the computed accept value. On a
// validation failure it writes an HTTP error response before returning. The
// returned leftover bytes were consumed past the head and belong to the
// frame stream.
func serverUpgrade(conn net.Conn, wantPath string) (leftover []byte, err error) {
	head, leftover, err := readHTTPHead(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	requestLine, headers := parseHTTPHead(head)
	parts := strings.Split(requestLine, " ")
	if len(parts) != 3 || parts[0] != "GET" {
		writeHTTPError(conn, "400 Bad Request")
		return nil, fmt.Errorf("%w: malformed request line %q", ErrHandshakeFailed, requestLine)
	}
	if parts[1] != wantPath {
		writeHTTPError(conn, "404 Not Found")
		return nil, fmt.Errorf("%w: path %q, want %q", ErrHandshakeFailed, parts[1], wantPath)
	}
	if !strings.EqualFold(headers["upgrade"], "websocket") {
		writeHTTPError(conn, "400 Bad Request")
		return nil, fmt.Errorf("%w: missing websocket upgrade header", ErrHandshakeFailed)
	}
	key := headers["sec-websocket-key"]
	if key == "" {
		writeHTTPError(conn, "400 Bad Request")
		return nil, fmt.Errorf("%w: missing Sec-WebSocket-Key", ErrHandshakeFailed)
	}

	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + computeAccept(key) + "\r\n\r\n"
	if _, err := conn.Write([]byte(response)); err != nil {
		return nil, fmt.Errorf("%w: writing response: %v", ErrHandshakeFailed, err)
	}

	return leftover, nil
}

// writeHTTPError writes a minimal failure response. Best effort: the
// connection is being torn down either way.
func writeHTTPError(conn net.Conn, status string) {
	_, _ = conn.Write([]byte("HTTP/1.1 " + status + "\r\nConnection: close\r\n\r\n"))
}

// clientUpgrade performs the client side of the opening handshake: send a
// hand-built GET with a random key, read the response head, verify the 101
// status and the exact accept value. The returned leftover bytes were
// consumed past the head and belong to the frame stream.
func clientUpgrade(conn net.Conn, host, path string) (leftover []byte, err error) {
	key, err := generateClientKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	request := "GET " + path + " HTTP/1.1\r\n" +
		"Host: " + host + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + key + "\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := conn.Write([]byte(request)); err != nil {
		return nil, fmt.Errorf("%w: writing request: %v", ErrHandshakeFailed, err)
	}

	head, leftover, err := readHTTPHead(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	statusLine, headers := parseHTTPHead(head)
	if !strings.Contains(statusLine, "101") {
		return nil, fmt.Errorf("%w: unexpected status %q", ErrHandshakeFailed, statusLine)
	}
	if accept := headers["sec-websocket-accept"]; accept != computeAccept(key) {
		return nil, fmt.Errorf("%w: accept value mismatch", ErrHandshakeFailed)
	}

	return leftover, nil
}
