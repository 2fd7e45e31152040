package signing

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// TimestampKey is injected into every signed parameter set
	TimestampKey = "timestamp"
	// CheckcodeKey carries the digest at the end of the body
	CheckcodeKey = "checkcode"
)

var (
	ErrDuplicateKey = errors.New("parameter collides with a reserved key")
	ErrInvalidKey   = errors.New("parameter key is not an ASCII identifier")
	ErrEmptySecret  = errors.New("signing secret is empty")
	ErrStalePayload = errors.New("signed payload is outside the freshness window")
)

// DuplicateKeyError reports a caller parameter that would shadow an injected key.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q: reserved for the signer", e.Key)
}

// Is lets errors.Is match ErrDuplicateKey.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// Params is the caller-supplied parameter set. Order is irrelevant.
type Params map[string]string

// Clock returns the current wall-clock time. Only whole seconds are used.
type Clock func() time.Time

// Payload is a single-use signed request body.
type Payload struct {
	Timestamp int64
	Canonical string
	Checkcode string
	Body      string
}

// Time returns the signing time.
func (p *Payload) Time() time.Time {
	return time.Unix(p.Timestamp, 0)
}

// Age returns how long ago the payload was signed relative to now.
// A negative age means the payload is timestamped in the future.
func (p *Payload) Age(now time.Time) time.Duration {
	return now.Sub(p.Time())
}

// Fresh reports whether the payload is still inside the window. A zero or
// negative maxAge disables the check.
func (p *Payload) Fresh(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	age := p.Age(now)
	return age <= maxAge && age >= -maxAge
}

// CheckFresh is Fresh returning ErrStalePayload with the observed age.
func (p *Payload) CheckFresh(now time.Time, maxAge time.Duration) error {
	if p.Fresh(now, maxAge) {
		return nil
	}
	return fmt.Errorf("%w: age %s exceeds %s", ErrStalePayload, p.Age(now).Round(time.Second), maxAge)
}

// Sign canonicalizes params plus the clock's timestamp and appends the checkcode.
func Sign(params Params, secret []byte, clock Clock) (*Payload, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if clock == nil {
		clock = time.Now
	}

	all := make(map[string]string, len(params)+1)
	for k, v := range params {
		if k == TimestampKey || k == CheckcodeKey {
			return nil, &DuplicateKeyError{Key: k}
		}
		if !validKey(k) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, k)
		}
		all[k] = v
	}

	ts := clock().Unix()
	all[TimestampKey] = strconv.FormatInt(ts, 10)

	canonical := Canonicalize(all)
	checkcode := Checkcode(canonical, secret)

	return &Payload{
		Timestamp: ts,
		Canonical: canonical,
		Checkcode: checkcode,
		Body:      canonical + "&" + CheckcodeKey + "=" + checkcode,
	}, nil
}

// Canonicalize joins key=encoded(value) pairs in ascending byte order of keys.
func Canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(Encode(params[k]))
	}
	return b.String()
}

// Checkcode returns the uppercase hex HMAC-SHA1 of message.
func Checkcode(message string, secret []byte) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write([]byte(message))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// Signer binds a secret and a clock.
type Signer struct {
	secret []byte
	clock  Clock
}

// Option configures a Signer
type Option func(*Signer)

// WithClock overrides time.Now
func WithClock(clock Clock) Option {
	return func(s *Signer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a signer. The secret is copied.
func New(secret []byte, opts ...Option) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	s := &Signer{
		secret: append([]byte(nil), secret...),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign signs params with the bound secret and clock.
func (s *Signer) Sign(params Params) (*Payload, error) {
	return Sign(params, s.secret, s.clock)
}

// Verify checks a body produced by this signer's secret.
func (s *Signer) Verify(body string) (*Payload, error) {
	return Verify(body, s.secret)
}

// Now reads the signer's clock.
func (s *Signer) Now() time.Time {
	return s.clock()
}

func validKey(k string) bool {
	if k == "" {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
