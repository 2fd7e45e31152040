package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Pericles001/Reverse-engineering-challenge/internal/credentials"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/logging"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/http/client"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/scraper"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/signing"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Credentials are handed to the interactive session at login.
type Credentials = credentials.Account

// InteractiveSession performs the browser-side login and scrapes the
// tokens page once logged in.
type InteractiveSession interface {
	Login(ctx context.Context, creds Credentials) ([]credentials.Cookie, error)
	ReadTokens(ctx context.Context) (map[string]string, error)
	Close() error
}

// Doer sends one HTTP request with the bridged credentials.
type Doer interface {
	Do(ctx context.Context, req *client.Request) (*client.Response, error)
}

// Sink receives the complete result. It is never called on failure.
type Sink interface {
	Persist(ctx context.Context, result *Result) error
}

// Observer records stage timings.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
}

// DefaultTokenFields are the hidden inputs signed for the settings call.
var DefaultTokenFields = []string{"access_token", "openId", "userId", "apiuser", "operateId"}

// Deps are the collaborators of a run.
type Deps struct {
	Session  InteractiveSession
	HTTP     Doer
	Sink     Sink
	Signer   *signing.Signer
	Logger   *logging.Logger
	Observer Observer
}

// Options describe the target site.
type Options struct {
	Account     Credentials
	Origins     []credentials.Origin
	UsersURL    string
	UsersMethod string
	SettingsURL string
	TokenFields []string
	// MaxAge is the local freshness window of a signed payload; 0 disables it.
	MaxAge time.Duration
	RunID  string
}

// Orchestrator drives one harvest run through its states.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *logging.Logger

	started atomic.Bool

	mu      sync.RWMutex
	state   State
	history []Transition
}

// New checks deps and opts. The returned orchestrator runs once.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Session == nil:
		return nil, fmt.Errorf("%w: interactive session required", ErrInvalidOptions)
	case deps.HTTP == nil:
		return nil, fmt.Errorf("%w: http client required", ErrInvalidOptions)
	case deps.Sink == nil:
		return nil, fmt.Errorf("%w: sink required", ErrInvalidOptions)
	case deps.Signer == nil:
		return nil, fmt.Errorf("%w: signer required", ErrInvalidOptions)
	case len(opts.Origins) == 0:
		return nil, fmt.Errorf("%w: at least one origin required", ErrInvalidOptions)
	}
	for name, raw := range map[string]string{"users url": opts.UsersURL, "settings url": opts.SettingsURL} {
		if u, err := url.Parse(raw); err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid %s %q", ErrInvalidOptions, name, raw)
		}
	}

	opts.UsersMethod = strings.ToUpper(opts.UsersMethod)
	if opts.UsersMethod == "" {
		opts.UsersMethod = http.MethodPost
	}
	if len(opts.TokenFields) == 0 {
		opts.TokenFields = DefaultTokenFields
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}

	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger.Named("session").With(zap.String("run_id", opts.RunID)),
		state:  Unauthenticated,
	}, nil
}

// RunID identifies this run in logs.
func (o *Orchestrator) RunID() string {
	return o.opts.RunID
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// History returns every transition so far.
func (o *Orchestrator) History() []Transition {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Transition(nil), o.history...)
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	from := o.state
	if !CanTransition(from, to) {
		o.mu.Unlock()
		panic(fmt.Sprintf("session: illegal transition %s -> %s", from, to))
	}
	o.state = to
	o.history = append(o.history, Transition{From: from, To: to, At: time.Now()})
	o.mu.Unlock()

	o.logger.Info("state transition",
		zap.Stringer("from", from),
		zap.Stringer("to", to))
}

// Run logs in, bridges credentials, fetches both resources and persists the
// result. The interactive session is closed before Run returns.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	defer o.closeSession()

	start := time.Now()
	result, err := o.run(ctx)
	if err != nil {
		fields := []zap.Field{
			zap.Bool("auth", IsAuthError(err)),
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		}
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			fields = append(fields, zap.Stringer("stage", stageErr.Stage))
		}
		o.transition(Failed)
		o.logger.Error("harvest failed", fields...)
		return nil, err
	}

	o.transition(Completed)
	o.logger.Info("harvest completed",
		zap.Int("users", len(result.Users)),
		zap.String("current_user", result.CurrentUser.ID()),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context) (*Result, error) {
	if err := o.advance(ctx, LoggingIn); err != nil {
		return nil, err
	}
	var cookies []credentials.Cookie
	err := o.timed(LoggingIn, func() error {
		var err error
		cookies, err = o.login(ctx)
		return err
	})
	if err != nil {
		return nil, &StageError{Stage: LoggingIn, Err: err}
	}
	if err := o.advance(ctx, Authenticated); err != nil {
		return nil, err
	}

	store := credentials.Propagate(cookies, o.opts.Origins)
	if err := o.advance(ctx, CredentialsBridged); err != nil {
		return nil, err
	}
	o.logger.Info("credentials bridged",
		zap.Int("origins", len(store.Origins())),
		zap.Any("cookies", store.Summary()))

	if err := o.advance(ctx, FetchingPublicResource); err != nil {
		return nil, err
	}
	var users []Record
	err = o.timed(FetchingPublicResource, func() error {
		var err error
		users, err = o.fetchUsers(ctx, store)
		return err
	})
	if err != nil {
		return nil, &StageError{Stage: FetchingPublicResource, Err: err}
	}

	if err := o.advance(ctx, FetchingPrivilegedResource); err != nil {
		return nil, err
	}
	var current Record
	err = o.timed(FetchingPrivilegedResource, func() error {
		var err error
		current, err = o.fetchCurrentUser(ctx, store)
		return err
	})
	if err != nil {
		return nil, &StageError{Stage: FetchingPrivilegedResource, Err: err}
	}

	// persisting is part of the FetchingPrivilegedResource -> Completed edge
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: FetchingPrivilegedResource, Err: err}
	}
	result := &Result{Users: users, CurrentUser: current}
	if err := o.deps.Sink.Persist(ctx, result); err != nil {
		return nil, &StageError{Stage: FetchingPrivilegedResource, Err: fmt.Errorf("persist result: %w", err)}
	}
	return result, nil
}

// advance moves to the next state unless ctx is already done, in which case
// the error names the state the run had reached.
func (o *Orchestrator) advance(ctx context.Context, to State) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: o.State(), Err: err}
	}
	o.transition(to)
	return nil
}

func (o *Orchestrator) timed(stage State, fn func() error) error {
	start := time.Now()
	err := fn()
	if o.deps.Observer != nil {
		o.deps.Observer.ObserveStage(stage.String(), time.Since(start))
	}
	return err
}

func (o *Orchestrator) login(ctx context.Context) ([]credentials.Cookie, error) {
	o.logger.Info("logging in",
		zap.String("username", o.opts.Account.Username),
		logging.Secret("password", o.opts.Account.Password))

	cookies, err := o.deps.Session.Login(ctx, o.opts.Account)
	if err != nil {
		return nil, &AuthenticationError{Err: err}
	}
	if len(cookies) == 0 {
		return nil, &AuthenticationError{Err: ErrNoCookies}
	}

	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	o.logger.Info("login succeeded", zap.Strings("cookies", names))
	return cookies, nil
}

func (o *Orchestrator) fetchUsers(ctx context.Context, store *credentials.Store) ([]Record, error) {
	resp, err := o.deps.HTTP.Do(ctx, &client.Request{
		Method: o.opts.UsersMethod,
		URL:    o.opts.UsersURL,
		Header: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		Credentials: store,
	})
	if err != nil {
		return nil, err
	}
	if err := checkResponse(FetchingPublicResource, o.opts.UsersURL, resp); err != nil {
		return nil, err
	}

	users, err := DecodeUsers(resp.Body)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		o.logger.Debug("user",
			zap.String("id", u.ID()),
			zap.String("first_name", u.FirstName()),
			zap.String("last_name", u.LastName()),
			zap.String("email", u.Email()))
	}
	o.logger.Info("users fetched", zap.Int("count", len(users)))
	return users, nil
}

func (o *Orchestrator) fetchCurrentUser(ctx context.Context, store *credentials.Store) (Record, error) {
	tokens, err := o.deps.Session.ReadTokens(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("read tokens: %w", err)
	}

	params := make(signing.Params, len(o.opts.TokenFields))
	for _, field := range o.opts.TokenFields {
		v, ok := tokens[field]
		if !ok || v == "" {
			return Record{}, &TokenFieldError{Field: field}
		}
		params[field] = v
	}

	payload, err := o.deps.Signer.Sign(params)
	if err != nil {
		return Record{}, fmt.Errorf("sign request: %w", err)
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	o.logger.Info("request signed",
		zap.Strings("keys", keys),
		zap.Int64("timestamp", payload.Timestamp),
		logging.Prefix("checkcode", payload.Checkcode, 8))

	resp, err := o.deps.HTTP.Do(ctx, &client.Request{
		Method: http.MethodPost,
		URL:    o.opts.SettingsURL,
		Header: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Accept":       "application/json",
		},
		Body:        payload.Body,
		Credentials: store,
		// measured at send time, after any rate limiter wait
		BeforeSend: func() error {
			return payload.CheckFresh(o.deps.Signer.Now(), o.opts.MaxAge)
		},
	})
	if err != nil {
		return Record{}, err
	}
	if err := checkResponse(FetchingPrivilegedResource, o.opts.SettingsURL, resp); err != nil {
		return Record{}, err
	}

	return NewRecord(resp.Body)
}

// checkResponse rejects non-2xx statuses and HTML bodies; a login page served
// with 200 means the session was not accepted.
func checkResponse(stage State, rawURL string, resp *client.Response) error {
	if !resp.OK() {
		return &ResourceFetchError{
			Stage:   stage,
			URL:     rawURL,
			Status:  resp.Status,
			Snippet: scraper.Snippet(resp.Body, 0),
		}
	}
	if mime := mimetype.Detect(resp.Body); mime.Is("text/html") || mime.Is("text/xml") {
		return fmt.Errorf("%w: got %s from %s", ErrUnexpectedBody, mime.String(), rawURL)
	}
	return nil
}

func (o *Orchestrator) closeSession() {
	if err := o.deps.Session.Close(); err != nil {
		o.logger.Warn("closing interactive session", zap.Error(err))
	}
}

// IsAuthError reports whether err came from the login stage.
func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}
