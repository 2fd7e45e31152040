package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Prefix of every environment variable.
const Prefix = "HARVEST"

// Browser drivers
const (
	DriverRod  = "rod"
	DriverForm = "form"
)

var ErrInvalid = errors.New("invalid configuration")

// Config holds all harvest configuration.
type Config struct {
	Account   AccountConfig   `envconfig:"ACCOUNT" toml:"account"`
	Signing   SigningConfig   `envconfig:"SIGNING" toml:"signing"`
	Origins   []string        `toml:"origins" default:"https://challenge.sunvoy.com,https://api.challenge.sunvoy.com"`
	Endpoints EndpointsConfig `envconfig:"ENDPOINTS" toml:"endpoints"`
	HTTP      HTTPConfig      `envconfig:"HTTP" toml:"http"`
	Browser   BrowserConfig   `envconfig:"BROWSER" toml:"browser"`
	Output    OutputConfig    `envconfig:"OUTPUT" toml:"output"`
	Logging   LogConfig       `envconfig:"LOG" toml:"logging"`
	Metrics   MetricsConfig   `envconfig:"METRICS" toml:"metrics"`

	// ConfigFile is a TOML file whose keys override the environment.
	ConfigFile string `split_words:"true" toml:"-"`
}

// AccountConfig holds the login credentials.
type AccountConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// SigningConfig holds the shared HMAC secret.
type SigningConfig struct {
	Secret string   `toml:"secret"`
	MaxAge Duration `split_words:"true" toml:"max_age" default:"5m"`
}

// EndpointsConfig addresses the challenge site.
type EndpointsConfig struct {
	LoginURL    string   `split_words:"true" toml:"login_url" default:"https://challenge.sunvoy.com/login"`
	TokensURL   string   `split_words:"true" toml:"tokens_url" default:"https://challenge.sunvoy.com/settings/tokens"`
	UsersURL    string   `split_words:"true" toml:"users_url" default:"https://challenge.sunvoy.com/api/users"`
	UsersMethod string   `split_words:"true" toml:"users_method" default:"POST"`
	SettingsURL string   `split_words:"true" toml:"settings_url" default:"https://api.challenge.sunvoy.com/api/settings"`
	TokenFields []string `split_words:"true" toml:"token_fields" default:"access_token,openId,userId,apiuser,operateId"`
}

// HTTPConfig holds the raw client's timeouts and retry policy.
type HTTPConfig struct {
	Timeout      Duration `toml:"timeout" default:"30s"`
	Retries      int      `toml:"retries" default:"0"`
	RetryWait    Duration `split_words:"true" toml:"retry_wait" default:"1s"`
	RetryMaxWait Duration `split_words:"true" toml:"retry_max_wait" default:"30s"`
	RateLimit    float64  `split_words:"true" toml:"rate_limit" default:"0"`
	UserAgent    string   `split_words:"true" toml:"user_agent"`
}

// BrowserConfig selects and configures the interactive login driver.
type BrowserConfig struct {
	Driver     string   `toml:"driver" default:"rod"`
	Bin        string   `toml:"bin"`
	Headless   bool     `toml:"headless" default:"true"`
	NoSandbox  bool     `split_words:"true" toml:"no_sandbox" default:"false"`
	ProfileDir string   `split_words:"true" toml:"profile_dir"`
	ControlURL string   `split_words:"true" toml:"control_url"`
	NavTimeout Duration `split_words:"true" toml:"nav_timeout" default:"30s"`
}

// OutputConfig controls where the result goes.
type OutputConfig struct {
	Path        string `toml:"path" default:"users.json"`
	Format      string `toml:"format"`
	Compression string `toml:"compression"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" default:"info"`
	Development bool   `toml:"development" default:"false"`
}

// MetricsConfig names the node-exporter textfile; empty disables metrics.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// Load reads HARVEST_* variables and then, when HARVEST_CONFIG_FILE is set,
// overlays the TOML file.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.ConfigFile != "" {
		if err := cfg.Overlay(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Overlay decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func (c *Config) Overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

// Default returns the configuration with every default applied and no
// environment read.
func Default() *Config {
	return &Config{
		Origins: []string{"https://challenge.sunvoy.com", "https://api.challenge.sunvoy.com"},
		Signing: SigningConfig{MaxAge: Duration(5 * time.Minute)},
		Endpoints: EndpointsConfig{
			LoginURL:    "https://challenge.sunvoy.com/login",
			TokensURL:   "https://challenge.sunvoy.com/settings/tokens",
			UsersURL:    "https://challenge.sunvoy.com/api/users",
			UsersMethod: "POST",
			SettingsURL: "https://api.challenge.sunvoy.com/api/settings",
			TokenFields: []string{"access_token", "openId", "userId", "apiuser", "operateId"},
		},
		HTTP: HTTPConfig{
			Timeout:      Duration(30 * time.Second),
			RetryWait:    Duration(time.Second),
			RetryMaxWait: Duration(30 * time.Second),
		},
		Browser: BrowserConfig{
			Driver:     DriverRod,
			Headless:   true,
			NavTimeout: Duration(30 * time.Second),
		},
		Output:  OutputConfig{Path: "users.json"},
		Logging: LogConfig{Level: "info"},
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Account.Username == "" {
		add("%s_ACCOUNT_USERNAME is required", Prefix)
	}
	if c.Account.Password == "" {
		add("%s_ACCOUNT_PASSWORD is required", Prefix)
	}
	if c.Signing.Secret == "" {
		add("%s_SIGNING_SECRET is required", Prefix)
	}
	if c.Signing.MaxAge < 0 {
		add("signing max age must not be negative")
	}

	if len(c.Origins) == 0 {
		add("at least one origin is required")
	}
	for _, o := range c.Origins {
		if !absolute(o) {
			add("origin %q is not an absolute URL", o)
		}
	}

	for _, ep := range [][2]string{
		{"login url", c.Endpoints.LoginURL},
		{"tokens url", c.Endpoints.TokensURL},
		{"users url", c.Endpoints.UsersURL},
		{"settings url", c.Endpoints.SettingsURL},
	} {
		if !absolute(ep[1]) {
			add("%s %q is not an absolute URL", ep[0], ep[1])
		}
	}
	switch strings.ToUpper(c.Endpoints.UsersMethod) {
	case "GET", "POST":
	default:
		add("users method %q must be GET or POST", c.Endpoints.UsersMethod)
	}
	if len(c.Endpoints.TokenFields) == 0 {
		add("at least one token field is required")
	}

	if c.HTTP.Timeout <= 0 {
		add("http timeout must be positive")
	}
	if c.HTTP.Retries < 0 {
		add("http retries must not be negative")
	}
	if c.HTTP.RateLimit < 0 {
		add("http rate limit must not be negative")
	}

	switch c.Browser.Driver {
	case DriverRod, DriverForm:
	default:
		add("browser driver %q must be %q or %q", c.Browser.Driver, DriverRod, DriverForm)
	}
	if c.Browser.NavTimeout <= 0 {
		add("browser navigation timeout must be positive")
	}
	if c.Browser.ControlURL != "" && !absolute(c.Browser.ControlURL) {
		add("browser control url %q is not an absolute URL", c.Browser.ControlURL)
	}

	switch strings.ToLower(c.Output.Format) {
	case "", "json", "yaml", "yml":
	default:
		add("output format %q must be json or yaml", c.Output.Format)
	}
	switch strings.ToLower(c.Output.Compression) {
	case "", "none", "gzip", "gz", "zstd", "zst":
	default:
		add("output compression %q must be none, gzip or zstd", c.Output.Compression)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log level %q must be debug, info, warn or error", c.Logging.Level)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.Account.Password != "" {
		c.Account.Password = "<redacted>"
	}
	if c.Signing.Secret != "" {
		c.Signing.Secret = "<redacted>"
	}
	return c
}

func absolute(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Duration parses Go duration strings from both env and TOML.
type Duration time.Duration

// Std converts to time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText accepts "90s", "5m" and so on.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
