// Package wsuri parses WebSocket connection URIs into their parts.
package wsuri

import (
	"net"
	"net/url"
	"strings"
)

// Scheme identifies which transport variant a URI selects.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeInsecure
	SchemeSecure
)

// Default ports substituted when a URI carries no explicit port.
const (
	DefaultPortInsecure = "80"
	DefaultPortSecure   = "443"
)

const schemeSeparator = "://"

// String returns the URI scheme literal for s.
func (s Scheme) String() string {
	switch s {
	case SchemeInsecure:
		return "ws"
	case SchemeSecure:
		return "wss"
	default:
		return "unknown"
	}
}

// DefaultPort returns the port used when a URI omits one.
func (s Scheme) DefaultPort() string {
	switch s {
	case SchemeInsecure:
		return DefaultPortInsecure
	case SchemeSecure:
		return DefaultPortSecure
	default:
		return ""
	}
}

// ParseScheme maps a scheme literal to a Scheme.
func ParseScheme(protocol string) Scheme {
	switch {
	case strings.EqualFold(protocol, "ws"):
		return SchemeInsecure
	case strings.EqualFold(protocol, "wss"):
		return SchemeSecure
	default:
		return SchemeUnknown
	}
}

// Address is a parsed connection URI.
type Address struct {
	Protocol string
	Scheme   Scheme
	Host     string
	Port     string
	Path     string
	Query    string
}

// Parse splits uri into its parts. It never fails: malformed input yields an
// Address with empty fields and validation is left to the caller.
//
// The scheme is only recognized when followed by "://". Query keeps its
// leading '?'.
func Parse(uri string) Address {
	var a Address
	if uri == "" {
		return a
	}

	queryStart := strings.IndexByte(uri, '?')
	if queryStart < 0 {
		queryStart = len(uri)
	}

	hostStart := 0
	if i := strings.IndexByte(uri[:queryStart], ':'); i >= 0 {
		rest := uri[i:]
		if len(rest) > len(schemeSeparator) && strings.HasPrefix(rest, schemeSeparator) {
			a.Protocol = uri[:i]
			hostStart = i + len(schemeSeparator)
		}
	}

	authorityEnd := queryStart
	if i := strings.IndexByte(uri[hostStart:queryStart], '/'); i >= 0 {
		authorityEnd = hostStart + i
		a.Path = uri[authorityEnd:queryStart]
	}
	a.Host, a.Port = splitAuthority(uri[hostStart:authorityEnd])

	if queryStart < len(uri) {
		a.Query = uri[queryStart:]
	}

	a.Scheme = ParseScheme(a.Protocol)
	if a.Port == "" {
		a.Port = a.Scheme.DefaultPort()
	}
	return a
}

// splitAuthority separates host and port. Bracketed IPv6 literals are
// unwrapped.
func splitAuthority(authority string) (host, port string) {
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return authority, ""
		}
		host = authority[1:end]
		if rest := authority[end+1:]; strings.HasPrefix(rest, ":") {
			port = rest[1:]
		}
		return host, port
	}
	if i := strings.IndexByte(authority, ':'); i >= 0 {
		return authority[:i], authority[i+1:]
	}
	return authority, ""
}

// HostPort joins host and port for dialing.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, a.Port)
}

// IsRawIP reports whether the host is an IP literal rather than a name.
func (a Address) IsRawIP() bool {
	return net.ParseIP(a.Host) != nil
}

// RequestURI returns the handshake request target, defaulting to "/".
func (a Address) RequestURI() string {
	path := a.Path
	if path == "" {
		path = "/"
	}
	return path + a.Query
}

// URL returns a url.URL suitable for the upgrade request. The path is kept
// verbatim as the opaque part so no re-escaping happens.
func (a Address) URL() *url.URL {
	path := a.Path
	if path == "" {
		path = "/"
	}
	return &url.URL{
		Scheme:   a.Scheme.String(),
		Host:     a.HostPort(),
		Opaque:   path,
		RawQuery: strings.TrimPrefix(a.Query, "?"),
	}
}
