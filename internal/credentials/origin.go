package credentials

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var ErrInvalidOrigin = errors.New("invalid origin")

// Origin is a canonical scheme://host[:port] string.
type Origin string

// ParseOrigin normalizes raw into an Origin. Path, query and fragment are
// dropped, scheme and host are lowercased and default ports removed.
func ParseOrigin(raw string) (Origin, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidOrigin, raw, err)
	}
	return OriginOf(u)
}

// OriginOf returns the origin of an already parsed URL.
func OriginOf(u *url.URL) (Origin, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidOrigin, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidOrigin, u.String())
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	return Origin(scheme + "://" + host), nil
}

// MustParseOrigin is ParseOrigin that panics; for constants and tests.
func MustParseOrigin(raw string) Origin {
	o, err := ParseOrigin(raw)
	if err != nil {
		panic(err)
	}
	return o
}

// ParseOrigins parses a list, rejecting the first bad entry.
func ParseOrigins(raws []string) ([]Origin, error) {
	origins := make([]Origin, 0, len(raws))
	for _, raw := range raws {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		o, err := ParseOrigin(raw)
		if err != nil {
			return nil, err
		}
		origins = append(origins, o)
	}
	return origins, nil
}

// String implements fmt.Stringer
func (o Origin) String() string {
	return string(o)
}

// Host returns the host[:port] part.
func (o Origin) Host() string {
	_, host, _ := strings.Cut(string(o), "://")
	return host
}
