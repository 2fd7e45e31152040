// Package testutil provides a fake challenge site for provider, orchestrator
// and CLI tests.
package testutil

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Pericles001/Reverse-engineering-challenge/internal/signing"
	"github.com/google/uuid"
)

const (
	SessionCookie = "JSESSIONID"
	Nonce         = "nonce-7f3a"
)

// Users is the listing served by POST /api/users.
const Users = `[{"id":"1","firstName":"Ada","lastName":"Lovelace","email":"ada@example.org"},` +
	`{"id":"2","firstName":"Alan","lastName":"Turing","email":"alan@example.org"}]`

// CurrentUser is returned by a correctly signed POST /api/settings.
const CurrentUser = `{"id":"42","firstName":"Demo","lastName":"User","email":"demo@example.org"}`

// DefaultTokens are the hidden inputs on /settings/tokens.
func DefaultTokens() map[string]string {
	return map[string]string{
		"access_token": "tok-abc",
		"openId":       "open-1",
		"userId":       "42",
		"apiuser":      "demo",
		"operateId":    "op-9",
		"language":     "en_US",
	}
}

// Challenge is a web origin and an API origin sharing one session table.
type Challenge struct {
	Web *httptest.Server
	API *httptest.Server

	Username string
	Password string
	Secret   []byte
	Tokens   map[string]string

	// SettingsStatus overrides the /api/settings status when non-zero.
	SettingsStatus int

	mu       sync.Mutex
	sessions map[string]bool
	hits     map[string]int
	bodies   []string
}

// NewChallenge starts both servers; they are closed with t.Cleanup.
func NewChallenge(t testing.TB, secret string) *Challenge {
	t.Helper()
	c := &Challenge{
		Username: "demo@example.org",
		Password: "test",
		Secret:   []byte(secret),
		Tokens:   DefaultTokens(),
		sessions: make(map[string]bool),
		hits:     make(map[string]int),
	}

	web := http.NewServeMux()
	web.HandleFunc("/login", c.login)
	web.HandleFunc("/list", c.authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><h1>Users</h1></body></html>")
	}))
	web.HandleFunc("/settings/tokens", c.authed(c.tokens))
	web.HandleFunc("/api/users", c.authed(c.users))

	api := http.NewServeMux()
	api.HandleFunc("/api/settings", c.authed(c.settings))

	c.Web = httptest.NewServer(c.count(web))
	c.API = httptest.NewServer(c.count(api))
	t.Cleanup(func() {
		c.Web.Close()
		c.API.Close()
	})
	return c
}

// Hits returns how many requests reached path on either server.
func (c *Challenge) Hits(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[path]
}

// SignedBodies returns every body POSTed to /api/settings.
func (c *Challenge) SignedBodies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.bodies...)
}

// LoginURL, TokensURL, UsersURL and SettingsURL address the fake site.
func (c *Challenge) LoginURL() string    { return c.Web.URL + "/login" }
func (c *Challenge) TokensURL() string   { return c.Web.URL + "/settings/tokens" }
func (c *Challenge) UsersURL() string    { return c.Web.URL + "/api/users" }
func (c *Challenge) SettingsURL() string { return c.API.URL + "/api/settings" }

func (c *Challenge) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.hits[r.URL.Path]++
		c.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (c *Challenge) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(SessionCookie)
		c.mu.Lock()
		ok := err == nil && c.sessions[ck.Value]
		c.mu.Unlock()
		if !ok {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next(w, r)
	}
}

func (c *Challenge) login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil &&
			r.PostForm.Get("nonce") == Nonce &&
			r.PostForm.Get("username") == c.Username &&
			r.PostForm.Get("password") == c.Password {
			id := uuid.NewString()
			c.mu.Lock()
			c.sessions[id] = true
			c.mu.Unlock()
			http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: id, Path: "/", HttpOnly: true})
			http.SetCookie(w, &http.Cookie{Name: "_csrf_token", Value: "csrf-" + id[:8], Path: "/"})
			http.Redirect(w, r, "/list", http.StatusFound)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>Login</title></head><body>
<form action="/login" method="post">
	<input type="hidden" name="nonce" value="%s">
	<input type="text" name="username">
	<input type="password" name="password">
	<button type="submit">Login</button>
</form></body></html>`, Nonce)
}

func (c *Challenge) tokens(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body><h1>Tokens</h1>\n")
	for id, v := range c.Tokens {
		fmt.Fprintf(&b, "<input type=\"hidden\" id=\"%s\" value=\"%s\">\n", html.EscapeString(id), html.EscapeString(v))
	}
	b.WriteString("</body></html>")
	io.WriteString(w, b.String())
}

func (c *Challenge) users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, Users)
}

func (c *Challenge) settings(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.bodies = append(c.bodies, string(body))
	status := c.SettingsStatus
	c.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if r.Method != http.MethodPost ||
		!strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if _, err := signing.Verify(string(body), c.Secret); err != nil {
		http.Error(w, `{"error":"invalid checkcode"}`, http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, CurrentUser)
}
