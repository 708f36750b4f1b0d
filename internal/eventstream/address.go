package eventstream

import (
	"fmt"
	"strings"
)

// Address is a transport endpoint for the event channel.
type Address struct {
	Network string // "unix" or "tcp"
	Path    string // socket path or host:port
}

// ParseAddress parses "unix:/path", "tcp:host:port" or a bare socket path.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty event channel address")
	}

	network, rest, ok := strings.Cut(s, ":")
	if !ok || strings.HasPrefix(s, "/") || strings.HasPrefix(s, ".") {
		return Address{Network: "unix", Path: s}, nil
	}

	switch network {
	case "unix":
		if rest == "" {
			return Address{}, fmt.Errorf("invalid event channel address %q: missing socket path", s)
		}
		return Address{Network: "unix", Path: rest}, nil
	case "tcp":
		if !strings.Contains(rest, ":") {
			return Address{}, fmt.Errorf("invalid event channel address %q: expected tcp:host:port", s)
		}
		return Address{Network: "tcp", Path: rest}, nil
	default:
		return Address{}, fmt.Errorf("invalid event channel address %q: unknown network %q", s, network)
	}
}

func (a Address) String() string {
	return a.Network + ":" + a.Path
}
