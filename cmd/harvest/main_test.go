package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Pericles001/Reverse-engineering-challenge/internal/infrastructure/config"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/logging"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/session"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/signing"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const fixtureBody = "apiuser=bob&timestamp=1700000000&userId=42&checkcode=C40982B7AC56AA11FE6FCDA54ACC6EF43BD8F5B5"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSign(t *testing.T) {
	out, err := execute(t, "sign", "--secret", "mys3cr3t", "--timestamp", "1700000000", "userId=42", "apiuser=bob")
	require.NoError(t, err)
	assert.Equal(t, fixtureBody+"\n", out)
}

func TestSignSecretFromEnv(t *testing.T) {
	t.Setenv("HARVEST_SIGNING_SECRET", "mys3cr3t")
	out, err := execute(t, "sign", "--timestamp", "1700000000", "apiuser=bob", "userId=42")
	require.NoError(t, err)
	assert.Equal(t, fixtureBody+"\n", out)
}

func TestSignErrors(t *testing.T) {
	t.Setenv("HARVEST_SIGNING_SECRET", "")

	_, err := execute(t, "sign", "userId=42")
	assert.ErrorIs(t, err, signing.ErrEmptySecret)

	_, err = execute(t, "sign", "--secret", "s", "timestamp=1")
	assert.ErrorIs(t, err, signing.ErrDuplicateKey)

	_, err = execute(t, "sign", "--secret", "s", "novalue")
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	out, err := execute(t, "sign", "--secret", "mys3cr3t", "--verify", fixtureBody)
	require.NoError(t, err)
	assert.Equal(t, "ok timestamp=1700000000\napiuser=bob&timestamp=1700000000&userId=42\n", out)

	tampered := strings.Replace(fixtureBody, "userId=42", "userId=43", 1)
	_, err = execute(t, "sign", "--secret", "mys3cr3t", "--verify", tampered)
	assert.ErrorIs(t, err, signing.ErrSignatureMismatch)

	_, err = execute(t, "sign", "--secret", "other", "--verify", fixtureBody)
	assert.ErrorIs(t, err, signing.ErrSignatureMismatch)

	_, err = execute(t, "sign", "--secret", "mys3cr3t", "--verify", fixtureBody, "--max-age", "5m")
	assert.ErrorIs(t, err, signing.ErrStalePayload)

	_, err = execute(t, "sign", "--secret", "mys3cr3t", "--timestamp", "1700000060",
		"--verify", fixtureBody, "--max-age", "5m")
	assert.NoError(t, err)
}

// challengeEnv points every HARVEST_* variable at a fake site and returns
// the output path.
func challengeEnv(t *testing.T, c *testutil.Challenge) string {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "users.json")

	t.Setenv("HARVEST_ACCOUNT_USERNAME", c.Username)
	t.Setenv("HARVEST_ACCOUNT_PASSWORD", c.Password)
	t.Setenv("HARVEST_SIGNING_SECRET", string(c.Secret))
	t.Setenv("HARVEST_ORIGINS", c.Web.URL+","+c.API.URL)
	t.Setenv("HARVEST_ENDPOINTS_LOGIN_URL", c.LoginURL())
	t.Setenv("HARVEST_ENDPOINTS_TOKENS_URL", c.TokensURL())
	t.Setenv("HARVEST_ENDPOINTS_USERS_URL", c.UsersURL())
	t.Setenv("HARVEST_ENDPOINTS_SETTINGS_URL", c.SettingsURL())
	t.Setenv("HARVEST_BROWSER_DRIVER", config.DriverForm)
	t.Setenv("HARVEST_HTTP_TIMEOUT", "5s")
	t.Setenv("HARVEST_OUTPUT_PATH", out)
	t.Setenv("HARVEST_METRICS_TEXTFILE", filepath.Join(dir, "harvest.prom"))
	t.Setenv("HARVEST_LOG_LEVEL", "error")
	t.Setenv("HARVEST_CONFIG_FILE", "")
	return out
}

func TestRunWritesResult(t *testing.T) {
	c := testutil.NewChallenge(t, "s3cret")
	path := challengeEnv(t, c)

	_, err := execute(t, "run")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var result session.Result
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Users, 2)
	assert.Equal(t, "Ada", result.Users[0].FirstName())
	assert.Equal(t, "42", result.CurrentUser.ID())

	require.Len(t, c.SignedBodies(), 1)
	_, err = signing.Verify(c.SignedBodies()[0], c.Secret)
	assert.NoError(t, err)

	prom, err := os.ReadFile(filepath.Join(filepath.Dir(path), "harvest.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `harvest_runs_total{outcome="completed"} 1`)
	assert.Contains(t, string(prom), "harvest_stage_duration_seconds")
}

func TestRunToStdoutAsYAML(t *testing.T) {
	c := testutil.NewChallenge(t, "s3cret")
	challengeEnv(t, c)

	out, err := execute(t, "run", "--output", "-", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "users:")
	assert.Contains(t, out, "firstName: Ada")
	assert.Contains(t, out, "current_user:")
}

func TestRunConfigFile(t *testing.T) {
	c := testutil.NewChallenge(t, "s3cret")
	challengeEnv(t, c)
	t.Setenv("HARVEST_ENDPOINTS_SETTINGS_URL", c.API.URL+"/wrong")

	file := filepath.Join(t.TempDir(), "harvest.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[endpoints]
settings_url = "`+c.SettingsURL()+`"

[output]
path = "-"
`), 0o600))

	out, err := execute(t, "run", "--config", file)
	require.NoError(t, err)
	assert.Contains(t, out, `"current_user"`)
}

func TestRunLoginRejected(t *testing.T) {
	c := testutil.NewChallenge(t, "s3cret")
	path := challengeEnv(t, c)
	t.Setenv("HARVEST_ACCOUNT_PASSWORD", "wrong")

	_, err := execute(t, "run")
	require.Error(t, err)
	assert.True(t, session.IsAuthError(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no output on failure")
	assert.Zero(t, c.Hits("/api/users"))

	prom, err := os.ReadFile(filepath.Join(filepath.Dir(path), "harvest.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `harvest_runs_total{outcome="failed"} 1`)
}

func TestRunFailureReportedOnce(t *testing.T) {
	c := testutil.NewChallenge(t, "s3cret")
	challengeEnv(t, c)
	t.Setenv("HARVEST_ACCOUNT_PASSWORD", "wrong")

	cfg, err := config.Load()
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)

	err = runHarvest(context.Background(), cfg, logging.Wrap(zap.New(core)), &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, session.IsAuthError(err))

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).AllUntimed()
	require.Len(t, errs, 1)
	assert.Equal(t, "harvest failed", errs[0].Message)

	var stderr bytes.Buffer
	report(&stderr, err)
	assert.Empty(t, stderr.String())
}

func TestReportUnloggedError(t *testing.T) {
	var stderr bytes.Buffer
	report(&stderr, signing.ErrEmptySecret)
	assert.Equal(t, "harvest: "+signing.ErrEmptySecret.Error()+"\n", stderr.String())
}

func TestRunWrongSecret(t *testing.T) {
	c := testutil.NewChallenge(t, "s3cret")
	path := challengeEnv(t, c)
	t.Setenv("HARVEST_SIGNING_SECRET", "not-the-secret")

	_, err := execute(t, "run")
	var fetchErr *session.ResourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 403, fetchErr.Status)
	assert.Equal(t, session.FetchingPrivilegedResource, fetchErr.Stage)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunInvalidConfig(t *testing.T) {
	c := testutil.NewChallenge(t, "s3cret")
	challengeEnv(t, c)
	t.Setenv("HARVEST_SIGNING_SECRET", "")

	_, err := execute(t, "run")
	assert.ErrorIs(t, err, config.ErrInvalid)

	t.Setenv("HARVEST_SIGNING_SECRET", "s3cret")
	_, err = execute(t, "run", "--driver", "selenium")
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Zero(t, c.Hits("/login"))
}
