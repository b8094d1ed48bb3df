package transport

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/opd-ai/peerwire/limits"
)

// wsTarget is a parsed WebSocket dial target.
type wsTarget struct {
	host string // host:port, ready for net.Dial
	path string
}

// parseWSAddress parses a ws://host:port/path dial target. The path defaults
// to "/" when absent.
func parseWSAddress(raw string) (*wsTarget, error) {
	if err := limits.ValidateAddress(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Scheme != "ws" {
		return nil, fmt.Errorf("%w: scheme %q, want ws", ErrInvalidAddress, u.Scheme)
	}
	if u.Port() == "" {
		return nil, fmt.Errorf("%w: missing port in %q", ErrInvalidAddress, raw)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return &wsTarget{host: u.Host, path: path}, nil
}

// parseTCPAddress parses a tcp://host:port or bare host:port dial target into
// the normalized host:port key used by the dial ledger and the
// live-connection table.
func parseTCPAddress(raw string) (string, error) {
	if err := limits.ValidateAddress(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	hostport := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		if u.Scheme != "tcp" {
			return "", fmt.Errorf("%w: scheme %q, want tcp", ErrInvalidAddress, u.Scheme)
		}
		hostport = u.Host
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if host == "" || port == "" {
		return "", fmt.Errorf("%w: empty host or port in %q", ErrInvalidAddress, raw)
	}

	return net.JoinHostPort(host, port), nil
}

// looksLikeTCPAddress reports whether a Send target should be treated as a
// dial address rather than a PeerID. PeerIDs never contain a scheme
// separator or a colon-delimited port.
func looksLikeTCPAddress(target string) bool {
	if strings.Contains(target, "://") {
		return true
	}
	_, _, err := net.SplitHostPort(target)
	return err == nil
}
