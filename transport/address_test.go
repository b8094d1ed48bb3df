package transport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWSAddress(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{"with path", "ws://127.0.0.1:9000/chat", "127.0.0.1:9000", "/chat", false},
		{"default path", "ws://127.0.0.1:9000", "127.0.0.1:9000", "/", false},
		{"nested path", "ws://example.com:80/a/b", "example.com:80", "/a/b", false},
		{"wrong scheme", "wss://127.0.0.1:9000/chat", "", "", true},
		{"http scheme", "http://127.0.0.1:9000/", "", "", true},
		{"missing port", "ws://127.0.0.1/chat", "", "", true},
		{"garbage", "not an address", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := parseWSAddress(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, target.host)
			assert.Equal(t, tt.wantPath, target.path)
		})
	}
}

func TestParseTCPAddress(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"scheme form", "tcp://127.0.0.1:9000", "127.0.0.1:9000", false},
		{"bare form", "127.0.0.1:9000", "127.0.0.1:9000", false},
		{"hostname", "example.com:80", "example.com:80", false},
		{"ipv6", "[::1]:9000", "[::1]:9000", false},
		{"wrong scheme", "udp://127.0.0.1:9000", "", true},
		{"no port", "127.0.0.1", "", true},
		{"empty host", ":9000", "", true},
		{"garbage", "tcp://", "", true},
		{"over length cap", "tcp://" + strings.Repeat("a", 600) + ":1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTCPAddress(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLooksLikeTCPAddress(t *testing.T) {
	assert.True(t, looksLikeTCPAddress("tcp://127.0.0.1:9000"))
	assert.True(t, looksLikeTCPAddress("127.0.0.1:9000"))
	assert.True(t, looksLikeTCPAddress("host:80"))
	assert.False(t, looksLikeTCPAddress("some-peer-id"))
	assert.False(t, looksLikeTCPAddress("3f0a2c1e-uuid-ish"))
}
