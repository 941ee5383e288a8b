package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Target names how to reach a device.
type Target struct {
	Kind  Kind
	Host  string // TCP only
	Index int    // USB only; -1 means first found
}

func (t Target) String() string {
	switch t.Kind {
	case KindTCP:
		return "tcp://" + t.Host
	case KindUDP:
		return "udp"
	default:
		if t.Index < 0 {
			return "usb"
		}
		return "usb:" + strconv.Itoa(t.Index)
	}
}

// ParseTarget parses a target specification string.
// Supported formats:
//   - "" or "usb" -> first USB device
//   - "usb:N" -> USB device at zero-based index N
//   - "tcp://host" or a bare IPv4 address -> TCP binding to host
//   - "udp" -> network discovery by broadcast
func ParseTarget(spec string) (Target, error) {
	spec = strings.TrimSpace(spec)
	switch spec {
	case "", "usb":
		return Target{Kind: KindUSB, Index: -1}, nil
	case "udp", "ethernet":
		return Target{Kind: KindUDP, Index: -1}, nil
	}

	if strings.Contains(spec, "://") {
		return parseURL(spec)
	}

	if rest, ok := strings.CutPrefix(spec, "usb:"); ok {
		idx, err := strconv.Atoi(rest)
		if err != nil || idx < 0 {
			return Target{}, fmt.Errorf("invalid USB index %q", rest)
		}
		return Target{Kind: KindUSB, Index: idx}, nil
	}

	if ip := net.ParseIP(spec); ip != nil && ip.To4() != nil {
		return Target{Kind: KindTCP, Host: spec, Index: -1}, nil
	}
	return Target{}, fmt.Errorf("unsupported target %q", spec)
}

// parseURL parses a URL-style target spec.
func parseURL(spec string) (Target, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return Target{}, fmt.Errorf("parse URL: %w", err)
	}

	switch u.Scheme {
	case "tcp":
		host := u.Hostname()
		if host == "" {
			return Target{}, fmt.Errorf("TCP host is required")
		}
		if u.Port() != "" {
			return Target{}, fmt.Errorf("TCP target takes no port; ports come from configuration")
		}
		return Target{Kind: KindTCP, Host: host, Index: -1}, nil
	case "usb":
		if u.Host == "" {
			return Target{Kind: KindUSB, Index: -1}, nil
		}
		idx, err := strconv.Atoi(u.Host)
		if err != nil || idx < 0 {
			return Target{}, fmt.Errorf("invalid USB index %q", u.Host)
		}
		return Target{Kind: KindUSB, Index: idx}, nil
	case "udp":
		return Target{Kind: KindUDP, Index: -1}, nil
	default:
		return Target{}, fmt.Errorf("unsupported transport scheme: %s", u.Scheme)
	}
}
