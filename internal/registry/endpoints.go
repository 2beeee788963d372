package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	ZeroXBaseURL = "https://api.0x.org"

	RelayMainnetBaseURL = "https://api.relay.link"
	RelayTestnetBaseURL = "https://api.testnets.relay.link"
)

func RelayBaseURL(testnet bool) string {
	if testnet {
		return RelayTestnetBaseURL
	}
	return RelayMainnetBaseURL
}

// IsAllowedStepURL accepts https URLs and plain http only for loopback hosts.
// An empty endpoint is allowed; callers resolve it against their base URL.
func IsAllowedStepURL(endpoint string) bool {
	if strings.TrimSpace(endpoint) == "" {
		return true
	}
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

// SameOrigin reports whether endpoint shares scheme, host and port with base.
func SameOrigin(base, endpoint string) bool {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return false
	}
	e, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	return strings.EqualFold(b.Scheme, e.Scheme) &&
		strings.EqualFold(b.Hostname(), e.Hostname()) &&
		normalizedURLPort(b) == normalizedURLPort(e)
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func normalizedURLPort(parsed *url.URL) string {
	if parsed == nil {
		return ""
	}
	if port := strings.TrimSpace(parsed.Port()); port != "" {
		return port
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
