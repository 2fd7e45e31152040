package formlogin

import (
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Pericles001/Reverse-engineering-challenge/internal/credentials"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/logging"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/http/client"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/scraper"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

var ErrClosed = errors.New("form login session closed")

// Config describes the login form and the page carrying the tokens.
type Config struct {
	LoginURL      string
	TokensURL     string
	UsernameField string
	PasswordField string
	FormSelector  string
	TokenFields   []string // empty = every hidden input
	Timeout       time.Duration
	UserAgent     string
}

// DefaultConfig matches the challenge login form.
func DefaultConfig() Config {
	return Config{
		UsernameField: "username",
		PasswordField: "password",
		FormSelector:  "form",
		Timeout:       30 * time.Second,
		UserAgent:     client.DefaultUserAgent,
	}
}

// Session logs in by submitting the HTML form over plain HTTP. It keeps its
// own cookie jar, which is the source of the harvested cookies.
type Session struct {
	cfg      Config
	loginURL *url.URL
	jar      *cookiejar.Jar
	http     *resty.Client
	logger   *logging.Logger

	mu     sync.Mutex
	closed bool
}

// New validates cfg and builds the client.
func New(cfg Config, logger *logging.Logger) (*Session, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	def := DefaultConfig()
	if cfg.UsernameField == "" {
		cfg.UsernameField = def.UsernameField
	}
	if cfg.PasswordField == "" {
		cfg.PasswordField = def.PasswordField
	}
	if cfg.FormSelector == "" {
		cfg.FormSelector = def.FormSelector
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	loginURL, err := url.Parse(cfg.LoginURL)
	if err != nil || loginURL.Host == "" {
		return nil, fmt.Errorf("invalid login url %q", cfg.LoginURL)
	}
	if u, err := url.Parse(cfg.TokensURL); err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid tokens url %q", cfg.TokensURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	rc := resty.New().
		SetCookieJar(jar).
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("User-Agent", cfg.UserAgent).
		SetLogger(logger.Named("resty").Sugar())

	return &Session{
		cfg:      cfg,
		loginURL: loginURL,
		jar:      jar,
		http:     rc,
		logger:   logger,
	}, nil
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Login fetches the login page, fills the form and submits it. The returned
// cookies are the jar's contents for the login origin.
func (s *Session) Login(ctx context.Context, account credentials.Account) ([]credentials.Cookie, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	page, err := s.get(ctx, s.cfg.LoginURL)
	if err != nil {
		return nil, err
	}

	form, err := scraper.FindForm(page.Body(), s.cfg.FormSelector)
	if err != nil {
		return nil, fmt.Errorf("login form: %w", err)
	}

	fields := form.Values()
	if nonce := scraper.Nonce(page.Body()); nonce != "" {
		fields["nonce"] = nonce
	}
	fields[s.cfg.UsernameField] = account.Username
	fields[s.cfg.PasswordField] = account.Password

	action, err := s.resolve(page, form.Action)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("submitting login form",
		zap.String("action", action.String()),
		zap.Int("fields", len(fields)),
		logging.Secret("password", account.Password))

	resp, err := s.http.R().
		SetContext(ctx).
		SetFormData(fields).
		Post(action.String())
	if err != nil {
		return nil, fmt.Errorf("submit login form: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", credentials.ErrLoginRejected, resp.StatusCode())
	}
	if s.onLoginPage(resp) {
		return nil, credentials.ErrLoginRejected
	}

	cookies := credentials.FromHTTP(s.jar.Cookies(s.loginURL))
	s.logger.Info("form login complete", zap.Int("cookies", len(cookies)))
	return cookies, nil
}

// ReadTokens loads the tokens page and returns the configured hidden inputs.
// Ids absent from the page are left out; the caller decides if that is fatal.
func (s *Session) ReadTokens(ctx context.Context) (map[string]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	page, err := s.get(ctx, s.cfg.TokensURL)
	if err != nil {
		return nil, err
	}
	if s.onLoginPage(page) {
		return nil, fmt.Errorf("tokens page redirected to login: %w", credentials.ErrLoginRejected)
	}

	if len(s.cfg.TokenFields) == 0 {
		return scraper.AllHiddenValues(page.Body())
	}

	values, err := scraper.HiddenValues(page.Body(), s.cfg.TokenFields)
	var missing *scraper.MissingFieldsError
	if errors.As(err, &missing) {
		s.logger.Warn("token fields missing from page", zap.Strings("ids", missing.IDs))
		return values, nil
	}
	return values, err
}

// Close drops the jar. Further calls fail with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.http.SetCookieJar(nil)
	return nil
}

func (s *Session) get(ctx context.Context, rawURL string) (*resty.Response, error) {
	resp, err := s.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode())
	}
	return resp, nil
}

// resolve turns the form action into an absolute URL against the page it
// came from. An empty action posts back to the page.
func (s *Session) resolve(page *resty.Response, action string) (*url.URL, error) {
	base := s.loginURL
	if page.RawResponse != nil && page.RawResponse.Request != nil {
		base = page.RawResponse.Request.URL
	}
	ref, err := url.Parse(strings.TrimSpace(action))
	if err != nil {
		return nil, fmt.Errorf("invalid form action %q: %w", action, err)
	}
	return base.ResolveReference(ref), nil
}

// onLoginPage reports whether the final URL after redirects is the login path.
func (s *Session) onLoginPage(resp *resty.Response) bool {
	if resp.RawResponse == nil || resp.RawResponse.Request == nil {
		return false
	}
	final := resp.RawResponse.Request.URL
	return final.Host == s.loginURL.Host &&
		strings.TrimSuffix(final.Path, "/") == strings.TrimSuffix(s.loginURL.Path, "/")
}
