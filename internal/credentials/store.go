package credentials

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Cookie is a harvested session cookie. Only Name and Value are propagated;
// the attributes are kept for diagnostics.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
}

// FromHTTP converts net/http cookies.
func FromHTTP(cookies []*http.Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}
	return out
}

type jar struct {
	names  []string // first-insert order
	values map[string]string
}

// Store maps (origin, cookie name) to a value.
type Store struct {
	origins []Origin
	jars    map[Origin]*jar
}

// Propagate fans every cookie out to every origin. A later cookie with the
// same name overwrites the earlier value for that origin.
func Propagate(cookies []Cookie, origins []Origin) *Store {
	s := &Store{jars: make(map[Origin]*jar, len(origins))}

	for _, origin := range origins {
		if _, ok := s.jars[origin]; ok {
			continue
		}
		s.origins = append(s.origins, origin)
		s.jars[origin] = &jar{values: make(map[string]string, len(cookies))}
	}

	for _, c := range cookies {
		for _, origin := range s.origins {
			j := s.jars[origin]
			if _, seen := j.values[c.Name]; !seen {
				j.names = append(j.names, c.Name)
			}
			j.values[c.Name] = c.Value
		}
	}

	return s
}

// Origins returns the origins in configuration order.
func (s *Store) Origins() []Origin {
	return append([]Origin(nil), s.origins...)
}

// Len returns the number of (origin, name) entries.
func (s *Store) Len() int {
	n := 0
	for _, j := range s.jars {
		n += len(j.names)
	}
	return n
}

// Lookup returns the value stored for (origin, name).
func (s *Store) Lookup(origin Origin, name string) (string, bool) {
	j, ok := s.jars[origin]
	if !ok {
		return "", false
	}
	v, ok := j.values[name]
	return v, ok
}

// Cookies returns name/value pairs for origin in harvest order.
func (s *Store) Cookies(origin Origin) []Cookie {
	j, ok := s.jars[origin]
	if !ok {
		return nil
	}
	out := make([]Cookie, 0, len(j.names))
	for _, name := range j.names {
		out = append(out, Cookie{Name: name, Value: j.values[name]})
	}
	return out
}

// HTTPCookies is Cookies as net/http cookies, ready for a request.
func (s *Store) HTTPCookies(origin Origin) []*http.Cookie {
	cookies := s.Cookies(origin)
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// Header renders the Cookie request header for origin.
func (s *Store) Header(origin Origin) string {
	cookies := s.Cookies(origin)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// ForURL resolves the origin of rawURL and returns its cookies. Unknown
// origins and unparsable URLs get none.
func (s *Store) ForURL(rawURL string) (Origin, []*http.Cookie) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil
	}
	origin, err := OriginOf(u)
	if err != nil {
		return "", nil
	}
	return origin, s.HTTPCookies(origin)
}

// Summary lists cookie names per origin, sorted, without values.
func (s *Store) Summary() map[string][]string {
	out := make(map[string][]string, len(s.jars))
	for origin, j := range s.jars {
		names := append([]string(nil), j.names...)
		sort.Strings(names)
		out[string(origin)] = names
	}
	return out
}
