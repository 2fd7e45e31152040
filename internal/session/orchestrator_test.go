package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Pericles001/Reverse-engineering-challenge/internal/credentials"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/logging"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/http/client"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	webOrigin   = "https://challenge.example.com"
	apiOrigin   = "https://api.challenge.example.com"
	usersURL    = webOrigin + "/api/users"
	settingsURL = apiOrigin + "/api/settings"
	secret      = "mys3cr3t"
	usersJSON   = `[{"id":"1","firstName":"Ada","lastName":"Lovelace","email":"ada@example.org"},{"id":2,"firstName":"Alan"}]`
	currentJSON = `{"id":"42","firstName":"Demo","lastName":"User","email":"demo@example.org"}`
)

var (
	account   = Credentials{Username: "demo@example.org", Password: "test"}
	harvested = []credentials.Cookie{{Name: "JSESSIONID", Value: "abc"}, {Name: "_csrf_token", Value: "t"}}
	tokens    = map[string]string{
		"access_token": "tok-abc",
		"openId":       "open-1",
		"userId":       "42",
		"apiuser":      "demo",
		"operateId":    "op-9",
		"language":     "en_US",
	}
)

func fixedClock() time.Time { return time.Unix(1700000000, 0) }

type fixture struct {
	session  *MockSession
	doer     *MockDoer
	sink     *MockSink
	observer *stageRecorder
	orch     *Orchestrator
}

func newFixture(t *testing.T, clock signing.Clock) *fixture {
	t.Helper()
	if clock == nil {
		clock = fixedClock
	}
	signer, err := signing.New([]byte(secret), signing.WithClock(clock))
	require.NoError(t, err)

	f := &fixture{
		session:  new(MockSession),
		doer:     new(MockDoer),
		sink:     new(MockSink),
		observer: &stageRecorder{},
	}
	f.session.On("Close").Return(nil).Once()

	f.orch, err = New(Deps{
		Session:  f.session,
		HTTP:     f.doer,
		Sink:     f.sink,
		Signer:   signer,
		Observer: f.observer,
	}, Options{
		Account: account,
		Origins: []credentials.Origin{
			credentials.MustParseOrigin(webOrigin),
			credentials.MustParseOrigin(apiOrigin),
		},
		UsersURL:    usersURL,
		SettingsURL: settingsURL,
		MaxAge:      5 * time.Minute,
		RunID:       "run-1",
	})
	require.NoError(t, err)
	return f
}

// observe routes the orchestrator's log output to an in-memory core.
func (f *fixture) observe(level zapcore.Level) *observer.ObservedLogs {
	core, logs := observer.New(level)
	f.orch.logger = logging.Wrap(zap.New(core)).With(zap.String("run_id", f.orch.RunID()))
	return logs
}

func forURL(u string) interface{} {
	return mock.MatchedBy(func(r *client.Request) bool { return r.URL == u })
}

func ok(body string) *client.Response {
	return &client.Response{Status: http.StatusOK, Body: []byte(body)}
}

func (f *fixture) assertAll(t *testing.T) {
	f.session.AssertExpectations(t)
	f.doer.AssertExpectations(t)
	f.sink.AssertExpectations(t)
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.session.On("ReadTokens", mock.Anything).Return(tokens, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).Return(ok(usersJSON), nil).Once()
	f.doer.On("Do", mock.Anything, forURL(settingsURL)).Return(ok(currentJSON), nil).Once()
	f.sink.On("Persist", mock.Anything, mock.AnythingOfType("*session.Result")).Return(nil).Once()

	result, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	f.assertAll(t)

	require.Len(t, result.Users, 2)
	assert.Equal(t, "Ada", result.Users[0].FirstName())
	assert.Equal(t, "2", result.Users[1].ID())
	assert.Equal(t, "42", result.CurrentUser.ID())
	assert.Equal(t, currentJSON, string(result.CurrentUser.Raw()))
	assert.Equal(t, Completed, f.orch.State())

	var states []State
	for _, tr := range f.orch.History() {
		states = append(states, tr.To)
	}
	assert.Equal(t, []State{
		LoggingIn, Authenticated, CredentialsBridged,
		FetchingPublicResource, FetchingPrivilegedResource, Completed,
	}, states)
	assert.Equal(t, []string{
		"logging_in", "fetching_public_resource", "fetching_privileged_resource",
	}, f.observer.stages)
}

func TestRunSendsBridgedCookiesAndSignedBody(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.session.On("ReadTokens", mock.Anything).Return(tokens, nil).Once()

	var usersReq, settingsReq *client.Request
	f.doer.On("Do", mock.Anything, forURL(usersURL)).
		Run(func(args mock.Arguments) { usersReq = args.Get(1).(*client.Request) }).
		Return(ok(usersJSON), nil).Once()
	f.doer.On("Do", mock.Anything, forURL(settingsURL)).
		Run(func(args mock.Arguments) { settingsReq = args.Get(1).(*client.Request) }).
		Return(ok(currentJSON), nil).Once()
	f.sink.On("Persist", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, usersReq)
	assert.Equal(t, http.MethodPost, usersReq.Method)
	assert.Equal(t, "application/json", usersReq.Header["Content-Type"])
	assert.Empty(t, usersReq.Body)

	require.NotNil(t, settingsReq)
	assert.Equal(t, http.MethodPost, settingsReq.Method)
	assert.Equal(t, "application/x-www-form-urlencoded", settingsReq.Header["Content-Type"])
	assert.Equal(t, "application/json", settingsReq.Header["Accept"])

	// the api origin never saw a login, yet carries the harvested cookies
	store := settingsReq.Credentials
	require.NotNil(t, store)
	assert.Equal(t, "JSESSIONID=abc; _csrf_token=t", store.Header(credentials.MustParseOrigin(apiOrigin)))
	assert.Equal(t, "JSESSIONID=abc; _csrf_token=t", store.Header(credentials.MustParseOrigin(webOrigin)))

	payload, err := signing.Verify(settingsReq.Body, []byte(secret))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), payload.Timestamp)
	assert.Equal(t,
		"access_token=tok-abc&apiuser=demo&openId=open-1&operateId=op-9&timestamp=1700000000&userId=42",
		payload.Canonical)
	assert.NotContains(t, settingsReq.Body, "language")
}

func TestLoginFailureMakesNoRequests(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, account).Return(nil, credentials.ErrLoginRejected).Once()

	result, err := f.orch.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, LoggingIn, stageErr.Stage)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, credentials.ErrLoginRejected)
	assert.True(t, IsAuthError(err))

	f.doer.AssertNumberOfCalls(t, "Do", 0)
	f.sink.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
	f.session.AssertNotCalled(t, "ReadTokens", mock.Anything)
	f.session.AssertCalled(t, "Close")
	assert.Equal(t, Failed, f.orch.State())
}

func TestLoginWithoutCookies(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, account).Return([]credentials.Cookie{}, nil).Once()

	_, err := f.orch.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoCookies)
	assert.True(t, IsAuthError(err))
	f.doer.AssertNumberOfCalls(t, "Do", 0)
	f.session.AssertExpectations(t)
}

func TestPrivilegedUnauthorized(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.session.On("ReadTokens", mock.Anything).Return(tokens, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).Return(ok(usersJSON), nil).Once()
	f.doer.On("Do", mock.Anything, forURL(settingsURL)).
		Return(&client.Response{Status: http.StatusUnauthorized, Body: []byte(`<h1>Unauthorized</h1>`)}, nil).Once()

	_, err := f.orch.Run(context.Background())
	require.Error(t, err)

	var fetchErr *ResourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusUnauthorized, fetchErr.Status)
	assert.Equal(t, FetchingPrivilegedResource, fetchErr.Stage)
	assert.Equal(t, "Unauthorized", fetchErr.Snippet)

	f.sink.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
	f.session.AssertExpectations(t)
	assert.Equal(t, Failed, f.orch.State())
}

func TestPublicResourceFailureSkipsTokens(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).
		Return(&client.Response{Status: http.StatusInternalServerError}, nil).Once()

	_, err := f.orch.Run(context.Background())

	var fetchErr *ResourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, FetchingPublicResource, fetchErr.Stage)
	assert.Equal(t, usersURL, fetchErr.URL)
	f.session.AssertNotCalled(t, "ReadTokens", mock.Anything)
	f.doer.AssertNumberOfCalls(t, "Do", 1)
}

func TestLoginPageServedWithOK(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).
		Return(ok(`<!DOCTYPE html><html><body><form action="/login"></form></body></html>`), nil).Once()

	_, err := f.orch.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedBody)
}

func TestUsersNotAnArray(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).Return(ok(`{"users":[]}`), nil).Once()

	_, err := f.orch.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedBody)
}

func TestMissingTokenField(t *testing.T) {
	f := newFixture(t, nil)
	partial := map[string]string{"access_token": "tok-abc", "openId": "open-1", "userId": "42", "apiuser": ""}
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.session.On("ReadTokens", mock.Anything).Return(partial, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).Return(ok(usersJSON), nil).Once()

	_, err := f.orch.Run(context.Background())

	var fieldErr *TokenFieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "apiuser", fieldErr.Field)
	f.doer.AssertNumberOfCalls(t, "Do", 1)
}

func TestReadTokensFailure(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("tab crashed")
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.session.On("ReadTokens", mock.Anything).Return(nil, boom).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).Return(ok(usersJSON), nil).Once()

	_, err := f.orch.Run(context.Background())
	assert.ErrorIs(t, err, boom)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, FetchingPrivilegedResource, stageErr.Stage)
}

func TestStalePayloadIsNotSent(t *testing.T) {
	calls := 0
	clock := func() time.Time {
		calls++
		return time.Unix(1700000000, 0).Add(time.Duration(calls-1) * 10 * time.Minute)
	}
	f := newFixture(t, clock)
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.session.On("ReadTokens", mock.Anything).Return(tokens, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).Return(ok(usersJSON), nil).Once()

	_, err := f.orch.Run(context.Background())
	assert.ErrorIs(t, err, signing.ErrStalePayload)
	f.doer.AssertNumberOfCalls(t, "Do", 1)
}

func TestNetworkError(t *testing.T) {
	f := newFixture(t, nil)
	netErr := &client.NetworkError{Method: http.MethodPost, URL: usersURL, Err: context.DeadlineExceeded}
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).Return(nil, netErr).Once()

	_, err := f.orch.Run(context.Background())

	var got *client.NetworkError
	require.ErrorAs(t, err, &got)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	f.sink.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
}

func TestSinkFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.session.On("ReadTokens", mock.Anything).Return(tokens, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).Return(ok(usersJSON), nil).Once()
	f.doer.On("Do", mock.Anything, forURL(settingsURL)).Return(ok(currentJSON), nil).Once()
	f.sink.On("Persist", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	result, err := f.orch.Run(context.Background())
	assert.Nil(t, result)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, FetchingPrivilegedResource, stageErr.Stage)
	assert.Equal(t, Failed, f.orch.State())

	history := f.orch.History()
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, Transition{From: stageErr.Stage, To: Failed}, Transition{From: last.From, To: last.To})
}

func TestCancelledContextSendsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, mock.Anything).Return(harvested, nil).Maybe()
	f.doer.On("Do", mock.Anything, mock.Anything).Return(ok(usersJSON), nil).Maybe()
	f.sink.On("Persist", mock.Anything, mock.Anything).Return(nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.orch.Run(ctx)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, Unauthenticated, stageErr.Stage)
	assert.Equal(t, Failed, f.orch.State())

	f.session.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
	f.doer.AssertNotCalled(t, "Do", mock.Anything, mock.Anything)
	f.sink.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
	f.session.AssertNumberOfCalls(t, "Close", 1)
}

func TestCancelledDuringLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.session.On("Login", mock.Anything, account).
		Run(func(mock.Arguments) { cancel() }).
		Return(harvested, nil).Once()
	f.doer.On("Do", mock.Anything, mock.Anything).Return(ok(usersJSON), nil).Maybe()

	_, err := f.orch.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, LoggingIn, stageErr.Stage)
	assert.False(t, IsAuthError(err))

	f.doer.AssertNotCalled(t, "Do", mock.Anything, mock.Anything)
	f.sink.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
	f.session.AssertNumberOfCalls(t, "Close", 1)
}

func TestCancelledBeforePersist(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.session.On("ReadTokens", mock.Anything).Return(tokens, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).Return(ok(usersJSON), nil).Once()
	f.doer.On("Do", mock.Anything, forURL(settingsURL)).
		Run(func(mock.Arguments) { cancel() }).
		Return(ok(currentJSON), nil).Once()

	_, err := f.orch.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, FetchingPrivilegedResource, stageErr.Stage)
	f.sink.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestUsersLoggedAtDebug(t *testing.T) {
	f := newFixture(t, nil)
	logs := f.observe(zapcore.DebugLevel)
	f.session.On("Login", mock.Anything, account).Return(harvested, nil).Once()
	f.session.On("ReadTokens", mock.Anything).Return(tokens, nil).Once()
	f.doer.On("Do", mock.Anything, forURL(usersURL)).Return(ok(usersJSON), nil).Once()
	f.doer.On("Do", mock.Anything, forURL(settingsURL)).Return(ok(currentJSON), nil).Once()
	f.sink.On("Persist", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	users := logs.FilterMessage("user").AllUntimed()
	require.Len(t, users, 2)
	assert.Equal(t, zapcore.DebugLevel, users[0].Level)
	assert.Equal(t, map[string]interface{}{
		"run_id":     "run-1",
		"id":         "1",
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      "ada@example.org",
	}, users[0].ContextMap())
	assert.Equal(t, "2", users[1].ContextMap()["id"])
	assert.Equal(t, "Alan", users[1].ContextMap()["first_name"])
	assert.Equal(t, "", users[1].ContextMap()["email"])
}

func TestFailureLoggedOnce(t *testing.T) {
	f := newFixture(t, nil)
	logs := f.observe(zapcore.DebugLevel)
	f.session.On("Login", mock.Anything, account).Return(nil, credentials.ErrLoginRejected).Once()

	_, err := f.orch.Run(context.Background())
	require.Error(t, err)

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).AllUntimed()
	require.Len(t, errs, 1)
	assert.Equal(t, "harvest failed", errs[0].Message)
	fields := errs[0].ContextMap()
	assert.Equal(t, "logging_in", fields["stage"])
	assert.Equal(t, true, fields["auth"])
}

func TestRunOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.session.On("Login", mock.Anything, account).Return(nil, errors.New("no")).Once()

	_, err := f.orch.Run(context.Background())
	require.Error(t, err)
	_, err = f.orch.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
	f.session.AssertNumberOfCalls(t, "Close", 1)
}

func TestCloseErrorDoesNotMaskResult(t *testing.T) {
	signer, err := signing.New([]byte(secret), signing.WithClock(fixedClock))
	require.NoError(t, err)

	sess := new(MockSession)
	sess.On("Login", mock.Anything, account).Return(nil, credentials.ErrLoginRejected).Once()
	sess.On("Close").Return(errors.New("chrome already gone")).Once()

	orch, err := New(Deps{Session: sess, HTTP: new(MockDoer), Sink: new(MockSink), Signer: signer},
		Options{Account: account, Origins: []credentials.Origin{webOrigin}, UsersURL: usersURL, SettingsURL: settingsURL})
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	assert.True(t, IsAuthError(err))
	sess.AssertExpectations(t)
}

func TestNewValidation(t *testing.T) {
	signer, err := signing.New([]byte(secret))
	require.NoError(t, err)
	deps := Deps{Session: new(MockSession), HTTP: new(MockDoer), Sink: new(MockSink), Signer: signer}
	opts := Options{Origins: []credentials.Origin{webOrigin}, UsersURL: usersURL, SettingsURL: settingsURL}

	orch, err := New(deps, opts)
	require.NoError(t, err)
	assert.NotEmpty(t, orch.RunID())
	assert.Equal(t, http.MethodPost, orch.opts.UsersMethod)

	lower := opts
	lower.UsersMethod = "get"
	orch, err = New(deps, lower)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, orch.opts.UsersMethod)
	assert.Equal(t, DefaultTokenFields, orch.opts.TokenFields)
	assert.Equal(t, Unauthenticated, orch.State())
	assert.Empty(t, orch.History())

	broken := []struct {
		name string
		deps Deps
		opts Options
	}{
		{"no session", Deps{HTTP: deps.HTTP, Sink: deps.Sink, Signer: signer}, opts},
		{"no http", Deps{Session: deps.Session, Sink: deps.Sink, Signer: signer}, opts},
		{"no sink", Deps{Session: deps.Session, HTTP: deps.HTTP, Signer: signer}, opts},
		{"no signer", Deps{Session: deps.Session, HTTP: deps.HTTP, Sink: deps.Sink}, opts},
		{"no origins", deps, Options{UsersURL: usersURL, SettingsURL: settingsURL}},
		{"bad users url", deps, Options{Origins: opts.Origins, UsersURL: "/api/users", SettingsURL: settingsURL}},
		{"bad settings url", deps, Options{Origins: opts.Origins, UsersURL: usersURL}},
	}
	for _, tc := range broken {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.deps, tc.opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}
