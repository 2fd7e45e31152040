package signing

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedBody     = errors.New("malformed signed body")
	ErrSignatureMismatch = errors.New("checkcode does not match")
)

// Verify recomputes the checkcode of a signed body and returns the parsed
// payload. The canonical part must already be in canonical form.
func Verify(body string, secret []byte) (*Payload, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	marker := "&" + CheckcodeKey + "="
	idx := strings.LastIndex(body, marker)
	if idx < 0 {
		return nil, fmt.Errorf("%w: no %s", ErrMalformedBody, CheckcodeKey)
	}
	canonical, got := body[:idx], body[idx+len(marker):]

	params, err := parseCanonical(canonical)
	if err != nil {
		return nil, err
	}
	if Canonicalize(params) != canonical {
		return nil, fmt.Errorf("%w: parameters are not in canonical order or encoding", ErrMalformedBody)
	}

	rawTS, ok := params[TimestampKey]
	if !ok {
		return nil, fmt.Errorf("%w: no %s", ErrMalformedBody, TimestampKey)
	}
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s %q", ErrMalformedBody, TimestampKey, rawTS)
	}

	want := Checkcode(canonical, secret)
	if !hmac.Equal([]byte(strings.ToUpper(got)), []byte(want)) {
		return nil, ErrSignatureMismatch
	}

	return &Payload{
		Timestamp: ts,
		Canonical: canonical,
		Checkcode: want,
		Body:      body,
	}, nil
}

// ParseParams turns "key=value" arguments into Params. Values are taken
// verbatim; the first '=' separates key and value.
func ParseParams(pairs []string) (Params, error) {
	params := make(Params, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("parameter %q: expected key=value", pair)
		}
		if _, dup := params[k]; dup {
			return nil, fmt.Errorf("parameter %q given twice", k)
		}
		params[k] = v
	}
	return params, nil
}

func parseCanonical(canonical string) (map[string]string, error) {
	params := make(map[string]string)
	if canonical == "" {
		return params, nil
	}
	for _, pair := range strings.Split(canonical, "&") {
		k, raw, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: pair %q", ErrMalformedBody, pair)
		}
		if _, dup := params[k]; dup {
			return nil, fmt.Errorf("%w: key %q repeated", ErrMalformedBody, k)
		}
		v, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformedBody, k, err)
		}
		params[k] = v
	}
	return params, nil
}
