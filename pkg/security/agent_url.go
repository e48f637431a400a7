package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnsafeURL = errors.New("unsafe agent URL")

// URLPolicy restricts where the agent client may connect.
type URLPolicy struct {
	// AllowHTTP permits plain HTTP. HTTPS is always allowed.
	AllowHTTP bool
	// AllowLocalNetworks permits localhost names and loopback, private and
	// link-local addresses.
	AllowLocalNetworks bool
}

// DevelopmentURLPolicy accepts an agent running on the local machine.
func DevelopmentURLPolicy() URLPolicy {
	return URLPolicy{AllowHTTP: true, AllowLocalNetworks: true}
}

// ValidateAgentURL checks rawURL against p without resolving host names.
func ValidateAgentURL(rawURL string, p URLPolicy) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(ErrUnsafeURL, "parsing %q: %v", rawURL, err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return errors.Wrap(ErrUnsafeURL, "plain http is not allowed")
		}
	default:
		return errors.Wrapf(ErrUnsafeURL, "unsupported scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return errors.Wrap(ErrUnsafeURL, "missing host")
	}

	if !p.AllowLocalNetworks && isLocalName(host) {
		return errors.Wrapf(ErrUnsafeURL, "local host name %q", host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		// a host name, nothing more to check offline
		return nil
	}
	if addr.Zone() != "" && !p.AllowLocalNetworks {
		return errors.Wrapf(ErrUnsafeURL, "zoned address %q", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return errors.Wrapf(ErrUnsafeURL, "address %q", host)
	}
	if !p.AllowLocalNetworks &&
		(addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()) {
		return errors.Wrapf(ErrUnsafeURL, "local network address %q", host)
	}
	return nil
}

func isLocalName(host string) bool {
	return host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local")
}
