// Package config loads and validates watcher configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

// EnvPrefix namespaces environment overrides, e.g. STOCKWATCH_SERVER_PORT.
const EnvPrefix = "STOCKWATCH"

// DefaultUserAgent is sent when http.user_agent is unset.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// Config captures all watcher configuration knobs loaded via Viper.
type Config struct {
	IntervalSeconds      int            `mapstructure:"interval_seconds"`
	RunImmediately       bool           `mapstructure:"run_immediately"`
	ShutdownGraceSeconds int            `mapstructure:"shutdown_grace_seconds"`
	Server               ServerConfig   `mapstructure:"server"`
	Checker              CheckerConfig  `mapstructure:"checker"`
	HTTP                 HTTPConfig     `mapstructure:"http"`
	Headless             HeadlessConfig `mapstructure:"headless"`
	Extract              ExtractConfig  `mapstructure:"extract"`
	Targets              []stock.Target `mapstructure:"targets"`
	State                StateConfig    `mapstructure:"state"`
	Notify               NotifyConfig   `mapstructure:"notify"`
	Logging              LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the health/metrics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CheckerConfig controls per-target retries and cycle fan-out.
type CheckerConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BackoffMs   int `mapstructure:"backoff_ms"`
	Concurrency int `mapstructure:"concurrency"`
}

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	RatePerHost    float64 `mapstructure:"rate_per_host"`
	Burst          int     `mapstructure:"burst"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// ExtractConfig holds the default phrase lists for rendered-DOM extraction.
type ExtractConfig struct {
	PositivePhrases []string `mapstructure:"positive_phrases"`
	NegativePhrases []string `mapstructure:"negative_phrases"`
}

// StateConfig selects and configures the state store.
type StateConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// NotifyConfig enables alert channels. A channel is active when its required
// fields are set.
type NotifyConfig struct {
	Pushover PushoverConfig `mapstructure:"pushover"`
	Email    EmailConfig    `mapstructure:"email"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// PushoverConfig holds Pushover credentials.
type PushoverConfig struct {
	UserKey  string `mapstructure:"user_key"`
	APIToken string `mapstructure:"api_token"`
	Endpoint string `mapstructure:"endpoint"`
}

// Enabled reports whether Pushover is configured.
func (p PushoverConfig) Enabled() bool {
	return p.UserKey != "" || p.APIToken != ""
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// Enabled reports whether SMTP delivery is configured.
func (e EmailConfig) Enabled() bool {
	return e.Host != ""
}

// PubSubConfig holds the alert topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether Pub/Sub delivery is configured.
func (p PubSubConfig) Enabled() bool {
	return p.Topic != ""
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from an optional file and the environment. With an
// empty path, stockwatch.{yaml,json,toml} is searched in the working
// directory, /etc/stockwatch and $HOME/.stockwatch.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("stockwatch")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/stockwatch/")
		v.AddConfigPath("$HOME/.stockwatch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	applyLegacy(v, &cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval_seconds", 60)
	v.SetDefault("run_immediately", false)
	v.SetDefault("shutdown_grace_seconds", 20)
	v.SetDefault("server.port", 8000)
	v.SetDefault("checker.max_attempts", 3)
	v.SetDefault("checker.backoff_ms", 1000)
	v.SetDefault("checker.concurrency", 8)
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.rate_per_host", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("extract.positive_phrases", []string{})
	v.SetDefault("extract.negative_phrases", []string{})
	v.SetDefault("state.driver", "sqlite")
	v.SetDefault("state.path", "stockwatch.db")
	v.SetDefault("state.table", "stock_state")
	v.SetDefault("state.dsn", "")
	v.SetDefault("state.bucket", "")
	v.SetDefault("state.prefix", "stock-state")
	v.SetDefault("notify.pushover.endpoint", "https://api.pushover.net/1/messages.json")
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.email.host", "")
	v.SetDefault("notify.email.username", "")
	v.SetDefault("notify.email.password", "")
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// bindLegacyEnv maps the unprefixed variables of the single-script watcher.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":               {"STOCKWATCH_SERVER_PORT", "PORT"},
		"http.user_agent":           {"STOCKWATCH_HTTP_USER_AGENT", "USER_AGENT"},
		"notify.pushover.user_key":  {"STOCKWATCH_NOTIFY_PUSHOVER_USER_KEY", "PUSHOVER_USER_KEY"},
		"notify.pushover.api_token": {"STOCKWATCH_NOTIFY_PUSHOVER_API_TOKEN", "PUSHOVER_API_TOKEN"},
		"legacy.product_urls":       {"PRODUCT_URLS"},
		"legacy.stock_text":         {"STOCK_TEXT"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// applyLegacy turns PRODUCT_URLS into rendered-DOM targets and STOCK_TEXT
// into a leading positive phrase.
// legacyDOMSelector limits PRODUCT_URLS targets to button text.
const legacyDOMSelector = "button"

func applyLegacy(v *viper.Viper, cfg *Config) {
	if text := strings.TrimSpace(v.GetString("legacy.stock_text")); text != "" {
		phrase := strings.ToLower(text)
		cfg.Extract.PositivePhrases = append([]string{phrase}, cfg.Extract.PositivePhrases...)
	}
	for _, raw := range strings.Split(v.GetString("legacy.product_urls"), ",") {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		cfg.Targets = append(cfg.Targets, stock.Target{
			URL:   u,
			Kind:  stock.RenderedDOM,
			Fetch: stock.FetchHTTP,
			Hints: stock.Hints{DOMSelector: legacyDOMSelector},
		})
	}
}

func (c *Config) normalize() {
	c.State.Driver = strings.ToLower(strings.TrimSpace(c.State.Driver))
	for i := range c.Targets {
		t := &c.Targets[i]
		t.URL = strings.TrimSpace(t.URL)
		if t.Fetch == "" {
			t.Fetch = stock.FetchHTTP
		}
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be > 0")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Checker.MaxAttempts <= 0 {
		return fmt.Errorf("checker.max_attempts must be > 0")
	}
	if c.Checker.BackoffMs < 0 {
		return fmt.Errorf("checker.backoff_ms must be >= 0")
	}
	if c.Checker.Concurrency <= 0 {
		return fmt.Errorf("checker.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RatePerHost < 0 {
		return fmt.Errorf("http.rate_per_host must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if err := c.validateTargets(); err != nil {
		return err
	}
	if err := c.validateState(); err != nil {
		return err
	}
	return c.validateNotify()
}

func (c Config) validateTargets() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("targets: at least one target is required (or set PRODUCT_URLS)")
	}
	seen := make(map[string]struct{}, len(c.Targets))
	for i, t := range c.Targets {
		u, err := url.Parse(t.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("targets[%d].url %q must be an absolute http(s) url", i, t.URL)
		}
		id := t.Identity()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("targets[%d]: duplicate identity %q", i, id)
		}
		seen[id] = struct{}{}

		switch t.Kind {
		case "", stock.StructuredJSON, stock.EmbeddedJSON, stock.RenderedDOM:
		default:
			return fmt.Errorf("targets[%d].kind %q is not supported", i, t.Kind)
		}
		switch t.Fetch {
		case stock.FetchHTTP, stock.FetchAuto:
		case stock.FetchBrowser:
			if !c.Headless.Enabled {
				return fmt.Errorf("targets[%d].fetch browser requires headless.enabled", i)
			}
		default:
			return fmt.Errorf("targets[%d].fetch %q is not supported", i, t.Fetch)
		}
	}
	return nil
}

func (c Config) validateState() error {
	switch c.State.Driver {
	case "memory":
	case "sqlite":
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for the sqlite driver")
		}
	case "postgres":
		if c.State.DSN == "" {
			return fmt.Errorf("state.dsn is required for the postgres driver")
		}
	case "gcs":
		if c.State.Bucket == "" {
			return fmt.Errorf("state.bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("state.driver %q is not supported", c.State.Driver)
	}
	return nil
}

func (c Config) validateNotify() error {
	p := c.Notify.Pushover
	if p.Enabled() && (p.UserKey == "" || p.APIToken == "") {
		return fmt.Errorf("notify.pushover requires both user_key and api_token")
	}
	e := c.Notify.Email
	if e.Enabled() && (e.From == "" || len(e.To) == 0) {
		return fmt.Errorf("notify.email requires from and to when host is set")
	}
	if c.Notify.PubSub.Enabled() && c.Notify.PubSub.ProjectID == "" {
		return fmt.Errorf("notify.pubsub.project_id is required when topic is set")
	}
	return nil
}

// Interval returns the cycle period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ShutdownGrace returns how long in-flight checks may run after a signal.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// Backoff returns the linear retry unit.
func (c Config) Backoff() time.Duration {
	return time.Duration(c.Checker.BackoffMs) * time.Millisecond
}

// FetchTimeout returns the per-request HTTP timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout returns the headless navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
