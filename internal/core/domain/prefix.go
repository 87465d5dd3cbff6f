package domain

import (
	"net"
	"strconv"
	"strings"
)

// Wildcard hosts accepted in a prefix.
const (
	// HostAny matches any host that no literal-host prefix claims.
	HostAny = "*"
	// HostAll matches every host, after literal and HostAny prefixes.
	HostAll = "+"
)

// Default ports per scheme.
const (
	DefaultHTTPPort  = 80
	DefaultHTTPSPort = 443
)

// RoutePrefix is a parsed registration key of the form scheme://host:port/path/.
type RoutePrefix struct {
	Secure bool
	Host   string
	Port   int
	Path   string
}

// ParsePrefix parses a prefix like "http://example.com:8080/app/".
//
// The host is lowercased. The path must end with a slash. An omitted port
// defaults to 80 for http and 443 for https.
func ParsePrefix(s string) (RoutePrefix, error) {
	var p RoutePrefix
	var rest string

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"):
		p.Secure = true
		rest = s[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		rest = s[len("http://"):]
	default:
		return RoutePrefix{}, ErrInvalidPrefix.WithDetails("unsupported scheme in " + strconv.Quote(s))
	}

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return RoutePrefix{}, ErrInvalidPrefix.WithDetails("missing path in " + strconv.Quote(s))
	}
	hostport, path := rest[:slash], rest[slash:]
	if !strings.HasSuffix(path, "/") {
		return RoutePrefix{}, ErrInvalidPrefix.WithDetails("path must end with '/' in " + strconv.Quote(s))
	}

	host, port, err := splitHostPort(hostport, p.Secure)
	if err != nil {
		return RoutePrefix{}, ErrInvalidPrefix.WithDetails(strconv.Quote(s)).WithCause(err)
	}
	if host == "" {
		return RoutePrefix{}, ErrInvalidPrefix.WithDetails("empty host in " + strconv.Quote(s))
	}

	p.Host = strings.ToLower(host)
	p.Port = port
	p.Path = path
	return p, nil
}

// MustParsePrefix is like ParsePrefix but panics on error.
func MustParsePrefix(s string) RoutePrefix {
	p, err := ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	return p
}

func splitHostPort(hostport string, secure bool) (string, int, error) {
	port := DefaultHTTPPort
	if secure {
		port = DefaultHTTPSPort
	}

	if strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]") {
		return hostport[1 : len(hostport)-1], port, nil
	}
	if !strings.Contains(hostport, ":") {
		return hostport, port, nil
	}
	if !strings.HasPrefix(hostport, "[") && strings.Count(hostport, ":") > 1 {
		return "", 0, ErrInvalidPrefix.WithDetails("unbracketed ipv6 host " + strconv.Quote(hostport))
	}

	h, ps, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, err
	}
	n, err := strconv.Atoi(ps)
	if err != nil || n <= 0 || n > 65535 {
		return "", 0, ErrInvalidPrefix.WithDetails("bad port " + strconv.Quote(ps))
	}
	return h, n, nil
}

// Scheme returns "https" for secure prefixes and "http" otherwise.
func (p RoutePrefix) Scheme() string {
	if p.Secure {
		return "https"
	}
	return "http"
}

// IsWildcard reports whether the host is HostAny or HostAll.
func (p RoutePrefix) IsWildcard() bool {
	return p.Host == HostAny || p.Host == HostAll
}

// String returns the canonical form used as the prefix identity.
func (p RoutePrefix) String() string {
	host := p.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return p.Scheme() + "://" + host + ":" + strconv.Itoa(p.Port) + p.Path
}
