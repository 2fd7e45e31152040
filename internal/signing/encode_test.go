package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMatchesEncodeURIComponent(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"plain":            "plain",
		"a b":              "a%20b",
		"a+b":              "a%2Bb",
		"k=v&x=y":          "k%3Dv%26x%3Dy",
		"-_.!~*'()":        "-_.!~*'()",
		"/?#[]@$,;:":       "%2F%3F%23%5B%5D%40%24%2C%3B%3A",
		"100%":             "100%25",
		"é":                "%C3%A9",
		"demo@example.org": "demo%40example.org",
	}
	for in, want := range cases {
		assert.Equal(t, want, Encode(in), "Encode(%q)", in)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a b+c", "k=v&x=y", "é/ü", "100%"} {
		got, err := Decode(Encode(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := Decode("bad%2")
	assert.Error(t, err)
	_, err = Decode("bad%zz")
	assert.Error(t, err)
}

func TestCanonicalEncodesValuesOnly(t *testing.T) {
	payload, err := Sign(Params{"access_token": "a b&c=d"}, []byte("s"), fixedClock(5))
	require.NoError(t, err)
	assert.Equal(t, "access_token=a%20b%26c%3Dd&timestamp=5", payload.Canonical)
}

func TestVerify(t *testing.T) {
	secret := []byte("mys3cr3t")
	payload, err := Sign(Params{"userId": "42", "apiuser": "bob", "openId": "o p"}, secret, fixedClock(1700000000))
	require.NoError(t, err)

	t.Run("accepts own body", func(t *testing.T) {
		got, err := Verify(payload.Body, secret)
		require.NoError(t, err)
		assert.Equal(t, payload.Timestamp, got.Timestamp)
		assert.Equal(t, payload.Canonical, got.Canonical)
		assert.Equal(t, payload.Checkcode, got.Checkcode)
		assert.Equal(t, time.Unix(1700000000, 0), got.Time())
	})

	t.Run("accepts lowercase checkcode", func(t *testing.T) {
		body := "apiuser=bob&timestamp=1700000000&userId=42&checkcode=c40982b7ac56aa11fe6fcda54acc6ef43bd8f5b5"
		got, err := Verify(body, secret)
		require.NoError(t, err)
		assert.Equal(t, "C40982B7AC56AA11FE6FCDA54ACC6EF43BD8F5B5", got.Checkcode)
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		_, err := Verify(payload.Body, []byte("nope"))
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("rejects tampered value", func(t *testing.T) {
		tampered := "apiuser=eve" + payload.Body[len("apiuser=bob"):]
		_, err := Verify(tampered, secret)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("rejects reordered keys", func(t *testing.T) {
		body := "userId=42&apiuser=bob&timestamp=1700000000&checkcode=" + payload.Checkcode
		_, err := Verify(body, secret)
		assert.ErrorIs(t, err, ErrMalformedBody)
	})

	t.Run("rejects missing checkcode", func(t *testing.T) {
		_, err := Verify(payload.Canonical, secret)
		assert.ErrorIs(t, err, ErrMalformedBody)
	})

	t.Run("rejects missing timestamp", func(t *testing.T) {
		canonical := "a=b"
		_, err := Verify(canonical+"&checkcode="+Checkcode(canonical, secret), secret)
		assert.ErrorIs(t, err, ErrMalformedBody)
	})
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]string{"userId=42", "apiuser=bob", "token=a=b"})
	require.NoError(t, err)
	assert.Equal(t, Params{"userId": "42", "apiuser": "bob", "token": "a=b"}, params)

	_, err = ParseParams([]string{"novalue"})
	assert.Error(t, err)

	_, err = ParseParams([]string{"a=1", "a=2"})
	assert.Error(t, err)
}
