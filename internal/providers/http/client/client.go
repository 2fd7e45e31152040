package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Pericles001/Reverse-engineering-challenge/internal/credentials"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/infrastructure/resilience"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/logging"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultUserAgent mimics a desktop browser; the challenge host serves the
// same pages to the raw client as to Chrome.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config defines timeouts and the retry policy of the network boundary.
type Config struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	RateLimit    float64 // requests per second, 0 = unlimited
	MaxRedirects int
	UserAgent    string
}

// DefaultConfig keeps the one-shot semantics: no retries, 30s timeout.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		RetryCount:   0,
		RetryWait:    1 * time.Second,
		RetryMaxWait: 30 * time.Second,
		MaxRedirects: 10,
		UserAgent:    DefaultUserAgent,
	}
}

// Observer receives one call per finished request. status is 0 on transport failure.
type Observer interface {
	ObserveRequest(host string, status int, d time.Duration)
}

// Client wraps resty with rate limiting and a circuit breaker.
type Client struct {
	Resty    *resty.Client
	Limiter  *rate.Limiter
	Breaker  *resilience.Breaker
	Mu       sync.RWMutex
	logger   *logging.Logger
	observer Observer
}

// Option configures a Client
type Option func(*Client)

// WithLogger routes resty's own warnings through zap
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver attaches request metrics
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates the raw HTTP client used after login.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	// pooled transport from retryablehttp; resty owns the retry loop
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	c := &Client{
		Limiter: newLimiter(cfg.RateLimit),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	restyClient := resty.New()
	restyClient.
		SetTransport(retryClient.HTTPClient.Transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(cfg.MaxRedirects)).
		SetHeader("User-Agent", cfg.UserAgent).
		SetLogger(c.logger.Named("resty").Sugar())

	// the credential store is the only cookie source; responses must not add more
	restyClient.SetCookieJar(nil)

	c.Resty = restyClient
	c.Breaker = resilience.New("http-external", resilience.Settings{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return c
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// SetHeader adds a default header
func (c *Client) SetHeader(key, value string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// SetTimeout configures the per-request timeout
func (c *Client) SetTimeout(d time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetTimeout(d)
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, minWait, maxWait time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetRetryCount(maxRetries).
		SetRetryWaitTime(minWait).
		SetRetryMaxWaitTime(maxWait)
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Limiter = newLimiter(rps)
}

// Request creates a new resty request after the breaker and limiter admit it.
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if c.Breaker.State() == resilience.StateOpen {
		return nil, resilience.ErrCircuitOpen
	}

	c.Mu.RLock()
	limiter := c.Limiter
	c.Mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// ExecuteWithBreaker runs an HTTP operation under the circuit breaker.
func (c *Client) ExecuteWithBreaker(fn func() (*resty.Response, error)) (*resty.Response, error) {
	return resilience.Do(c.Breaker, fn)
}

// Do issues req, attaching every cookie the credential store holds for the
// URL's origin. A non-2xx status is not an error here.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return nil, &NetworkError{Method: method, URL: req.URL, Err: fmt.Errorf("invalid url")}
	}

	r, err := c.Request(ctx)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: req.URL, Err: err}
	}
	for k, v := range req.Header {
		r.SetHeader(k, v)
	}
	if req.Credentials != nil {
		origin, cookies := req.Credentials.ForURL(req.URL)
		r.SetCookies(cookies)
		c.logger.Debug("attaching credentials",
			zap.String("origin", origin.String()),
			zap.Int("cookies", len(cookies)))
	}
	if req.Body != "" {
		r.SetBody(req.Body)
	}

	if req.BeforeSend != nil {
		if err := req.BeforeSend(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.ExecuteWithBreaker(func() (*resty.Response, error) {
		return r.Execute(method, req.URL)
	})
	elapsed := time.Since(start)

	if err != nil {
		c.observe(u.Host, 0, elapsed)
		return nil, &NetworkError{Method: method, URL: req.URL, Err: err}
	}

	c.observe(u.Host, resp.StatusCode(), elapsed)
	c.logger.Debug("http response",
		zap.String("method", method),
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode()),
		zap.Int("size", len(resp.Body())),
		zap.Duration("elapsed", elapsed))

	return &Response{
		Status:   resp.StatusCode(),
		Header:   resp.Header(),
		Body:     resp.Body(),
		Duration: elapsed,
	}, nil
}

func (c *Client) observe(host string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(host, status, d)
	}
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}

// Request is one outbound call.
type Request struct {
	Method      string
	URL         string
	Header      map[string]string
	Body        string
	Credentials *credentials.Store
	// BeforeSend runs once the limiter has admitted the call, just before
	// it goes out. Its error is returned as is and nothing is sent.
	BeforeSend func() error
}

// Response is the status and raw body of a completed call.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}
