package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Pericles001/Reverse-engineering-challenge/internal/credentials"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/logging"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/scraper"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("browser session closed")

// Config controls how Chrome is obtained and how the login page is driven.
type Config struct {
	// ControlURL attaches to a running Chrome; empty launches one.
	ControlURL string
	Bin        string
	Headless   bool
	NoSandbox  bool
	// ProfileDir is Chrome's user data dir; empty uses a temp dir removed on Close.
	ProfileDir string

	NavTimeout time.Duration

	LoginURL         string
	TokensURL        string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	TokenFields      []string
}

// DefaultConfig matches the challenge login form.
func DefaultConfig() Config {
	return Config{
		Headless:         true,
		NavTimeout:       30 * time.Second,
		UsernameSelector: `input[name="username"]`,
		PasswordSelector: `input[name="password"]`,
		SubmitSelector:   `form button[type="submit"], form input[type="submit"]`,
	}
}

type closer interface {
	Close() error
}

// Session drives one incognito Chrome page through login and token scraping.
type Session struct {
	cfg      Config
	loginURL *url.URL
	logger   *logging.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	page     *rod.Page

	// released by Close; browser only when this session launched it
	tab       closer
	incognito closer
	browser   closer
	closed    bool
}

// New validates cfg. Chrome is started lazily by the first Login.
func New(cfg Config, logger *logging.Logger) (*Session, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	def := DefaultConfig()
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = def.NavTimeout
	}
	if cfg.UsernameSelector == "" {
		cfg.UsernameSelector = def.UsernameSelector
	}
	if cfg.PasswordSelector == "" {
		cfg.PasswordSelector = def.PasswordSelector
	}
	if cfg.SubmitSelector == "" {
		cfg.SubmitSelector = def.SubmitSelector
	}

	loginURL, err := url.Parse(cfg.LoginURL)
	if err != nil || loginURL.Host == "" {
		return nil, fmt.Errorf("invalid login url %q", cfg.LoginURL)
	}
	if u, err := url.Parse(cfg.TokensURL); err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid tokens url %q", cfg.TokensURL)
	}

	return &Session{cfg: cfg, loginURL: loginURL, logger: logger}, nil
}

// start launches or attaches to Chrome and opens an incognito page.
func (s *Session) start(ctx context.Context) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.page != nil {
		return s.page, nil
	}

	controlURL := s.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(s.cfg.Headless).
			NoSandbox(s.cfg.NoSandbox).
			Leakless(false)
		if s.cfg.Bin != "" {
			l = l.Bin(s.cfg.Bin)
		}
		if s.cfg.ProfileDir != "" {
			l = l.UserDataDir(s.cfg.ProfileDir)
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		s.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		s.killLocked()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = browser

	incognito, err := browser.Incognito()
	if err != nil {
		s.killLocked()
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	s.incognito = incognito
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		s.killLocked()
		return nil, fmt.Errorf("create page: %w", err)
	}
	s.page = page
	s.tab = page

	s.logger.Debug("chrome ready",
		zap.Bool("attached", s.cfg.ControlURL != ""),
		zap.Bool("headless", s.cfg.Headless))
	return page, nil
}

// Login fills and submits the login form, then returns every cookie the
// browser holds for the login URL.
func (s *Session) Login(ctx context.Context, account credentials.Account) ([]credentials.Cookie, error) {
	page, err := s.start(ctx)
	if err != nil {
		return nil, err
	}
	p := page.Context(ctx)

	if err := s.load(p, s.cfg.LoginURL); err != nil {
		return nil, fmt.Errorf("login page: %w", err)
	}
	if err := s.fill(p, s.cfg.UsernameSelector, account.Username); err != nil {
		return nil, err
	}
	if err := s.fill(p, s.cfg.PasswordSelector, account.Password); err != nil {
		return nil, err
	}

	tp := p.Timeout(s.cfg.NavTimeout)
	wait := tp.WaitNavigation(proto.PageLifecycleEventNameLoad)
	err = s.submit(p)
	if err == nil {
		wait()
	}
	tp.CancelTimeout()
	if err != nil {
		return nil, err
	}

	info, err := p.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}
	if s.isLoginPage(info.URL) {
		return nil, credentials.ErrLoginRejected
	}

	raw, err := p.Cookies([]string{s.cfg.LoginURL})
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	cookies := convertCookies(raw)

	s.logger.Info("browser login complete",
		zap.String("landed", info.URL),
		zap.Int("cookies", len(cookies)))
	return cookies, nil
}

// ReadTokens loads the tokens page in the logged-in browser and reads the
// configured hidden inputs. Ids absent from the page are left out.
func (s *Session) ReadTokens(ctx context.Context) (map[string]string, error) {
	page, err := s.start(ctx)
	if err != nil {
		return nil, err
	}
	p := page.Context(ctx)

	if err := s.load(p, s.cfg.TokensURL); err != nil {
		return nil, fmt.Errorf("tokens page: %w", err)
	}

	info, err := p.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}
	if s.isLoginPage(info.URL) {
		return nil, fmt.Errorf("tokens page redirected to login: %w", credentials.ErrLoginRejected)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("read tokens page: %w", err)
	}

	if len(s.cfg.TokenFields) == 0 {
		return scraper.AllHiddenValues([]byte(html))
	}
	values, err := scraper.HiddenValues([]byte(html), s.cfg.TokenFields)
	var missing *scraper.MissingFieldsError
	if errors.As(err, &missing) {
		s.logger.Warn("token fields missing from page", zap.Strings("ids", missing.IDs))
		return values, nil
	}
	return values, err
}

// Close releases the page and the incognito context. A launched Chrome is
// shut down and killed; an attached one is left running.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.tab != nil {
		if err := s.tab.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
	}
	if s.incognito != nil {
		if err := s.incognito.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close incognito context: %w", err))
		}
	}
	if s.browser != nil && s.ownsBrowser() {
		// the process is killed below either way
		_ = s.browser.Close()
	}
	s.page, s.tab, s.incognito, s.browser = nil, nil, nil, nil
	s.killLocked()
	return errors.Join(errs...)
}

func (s *Session) ownsBrowser() bool {
	return s.cfg.ControlURL == ""
}

// load navigates and waits for the load event within the navigation timeout.
func (s *Session) load(p *rod.Page, rawURL string) error {
	tp := p.Timeout(s.cfg.NavTimeout)
	defer tp.CancelTimeout()
	if err := tp.Navigate(rawURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := tp.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

func (s *Session) killLocked() {
	if s.launcher == nil {
		return
	}
	s.launcher.Kill()
	if s.cfg.ProfileDir == "" {
		s.launcher.Cleanup()
	}
	s.launcher = nil
}

func (s *Session) fill(p *rod.Page, selector, value string) error {
	tp := p.Timeout(s.cfg.NavTimeout)
	defer tp.CancelTimeout()
	el, err := tp.Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("input %s: %w", selector, err)
	}
	return nil
}

// submit clicks the submit control, or submits the first form when there is none.
func (s *Session) submit(p *rod.Page) error {
	has, el, err := p.Has(s.cfg.SubmitSelector)
	if err != nil {
		return fmt.Errorf("find submit: %w", err)
	}
	if has {
		return el.Click(proto.InputMouseButtonLeft, 1)
	}

	tp := p.Timeout(s.cfg.NavTimeout)
	defer tp.CancelTimeout()
	form, err := tp.Element("form")
	if err != nil {
		return fmt.Errorf("login form not found: %w", err)
	}
	if _, err := form.Eval(`() => this.submit()`); err != nil {
		return fmt.Errorf("submit form: %w", err)
	}
	return nil
}

func (s *Session) isLoginPage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, s.loginURL.Host) &&
		strings.TrimSuffix(u.Path, "/") == strings.TrimSuffix(s.loginURL.Path, "/")
}

func convertCookies(raw []*proto.NetworkCookie) []credentials.Cookie {
	out := make([]credentials.Cookie, 0, len(raw))
	for _, c := range raw {
		ck := credentials.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		// session cookies report -1
		if exp := float64(c.Expires); exp > 0 {
			ck.Expires = time.Unix(int64(exp), 0)
		}
		out = append(out, ck)
	}
	return out
}
