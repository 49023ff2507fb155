// Package config loads TwitLysis settings from a YAML file, fills defaults
// and applies TWITLYSIS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/Cryonoid/TwitLysis/internal/credential"
	"github.com/Cryonoid/TwitLysis/internal/fingerprint"
	"github.com/Cryonoid/TwitLysis/internal/preflight"
	"github.com/Cryonoid/TwitLysis/internal/session"
)

// Environment variables consulted by Load.
const (
	EnvPrefix = "TWITLYSIS_"

	envLogLevel       = EnvPrefix + "LOG_LEVEL"
	envLogFormat      = EnvPrefix + "LOG_FORMAT"
	envStorageBackend = EnvPrefix + "STORAGE_BACKEND"
	envStorageDir     = EnvPrefix + "STORAGE_DIR"
	envStorageDSN     = EnvPrefix + "STORAGE_DSN"
	envCredentials    = EnvPrefix + "CREDENTIALS"
	envControlURL     = EnvPrefix + "BROWSER_CONTROL_URL"
	envBrowserBin     = EnvPrefix + "BROWSER_BIN"
	envProxyFile      = EnvPrefix + "PROXY_FILE"
	envSnapshotDir    = EnvPrefix + "SNAPSHOT_DIR"
	envAddr           = EnvPrefix + "ADDR"
	envMetricsPort    = EnvPrefix + "METRICS_PORT"
	envMaxAttempts    = EnvPrefix + "MAX_ATTEMPTS"
	envRequestDelay   = EnvPrefix + "REQUEST_DELAY"
)

// Storage backends understood by the CLI.
const (
	BackendYAML     = "yaml"
	BackendJSON     = "json"
	BackendCSV      = "csv"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Backends lists the valid storage backend names.
var Backends = []string{BackendYAML, BackendJSON, BackendCSV, BackendSQLite, BackendPostgres}

// Config is the top-level configuration. Booleans are named so that false is
// the default, which keeps the merge of file values over defaults simple.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Session   SessionConfig   `yaml:"session"`
	Browser   BrowserConfig   `yaml:"browser"`
	Storage   StorageConfig   `yaml:"storage"`
	Preflight PreflightConfig `yaml:"preflight"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Server    ServerConfig    `yaml:"server"`
	// SnapshotDir receives debug HTML snapshots.
	SnapshotDir string `yaml:"snapshot_dir"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// SessionConfig tunes collection pacing and retries.
type SessionConfig struct {
	BaseURL            string        `yaml:"base_url"`
	CookieDomain       string        `yaml:"cookie_domain"`
	MaxAttempts        int           `yaml:"max_attempts"`
	RequestDelay       time.Duration `yaml:"request_delay"`
	RateBudget         int           `yaml:"rate_budget"`
	MaxScrolls         int           `yaml:"max_scrolls"`
	EmptyPassThreshold int           `yaml:"empty_pass_threshold"`
	WaitTimeout        time.Duration `yaml:"wait_timeout"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	SettleMin          time.Duration `yaml:"settle_min"`
	SettleMax          time.Duration `yaml:"settle_max"`
	CredentialPath     string        `yaml:"credential_path"`
	Language           string        `yaml:"language"`
	DisableHumanize    bool          `yaml:"disable_humanize"`
	SnapshotFinal      bool          `yaml:"snapshot_final"`
}

// BrowserConfig controls how browsers are acquired.
type BrowserConfig struct {
	ControlURL string `yaml:"control_url"`
	Bin        string `yaml:"bin"`
	Headful    bool   `yaml:"headful"`
	NoSandbox  bool   `yaml:"no_sandbox"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	// Dir holds file based backends. The sqlite database defaults to a file
	// inside it.
	Dir string `yaml:"dir"`
	DSN string `yaml:"dsn"`
}

// PreflightConfig controls the advisory HTTP probe.
type PreflightConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Fingerprint string        `yaml:"fingerprint"`
	Timeout     time.Duration `yaml:"timeout"`
	EnvProxy    bool          `yaml:"env_proxy"`
}

// ProxyConfig points at an optional proxy list.
type ProxyConfig struct {
	File     string        `yaml:"file"`
	Strikes  int           `yaml:"strikes"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPort int    `yaml:"metrics_port"`
	// SearchRate is the number of /api/search requests admitted per minute.
	SearchRate int `yaml:"search_rate"`
}

// Default returns the built-in configuration.
func Default() Config {
	sc := session.DefaultConfig()
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Session: SessionConfig{
			BaseURL:            sc.BaseURL,
			CookieDomain:       sc.CookieDomain,
			MaxAttempts:        sc.MaxAttempts,
			RequestDelay:       sc.RequestDelay,
			RateBudget:         sc.RateBudget,
			MaxScrolls:         sc.MaxScrolls,
			EmptyPassThreshold: sc.EmptyPassThreshold,
			WaitTimeout:        sc.WaitTimeout,
			PollInterval:       sc.PollInterval,
			SettleMin:          sc.SettleMin,
			SettleMax:          sc.SettleMax,
			CredentialPath:     credential.DefaultPath,
			Language:           sc.Language,
		},
		Storage: StorageConfig{Backend: BackendYAML, Dir: "tweets"},
		Preflight: PreflightConfig{
			Fingerprint: string(fingerprint.ProfileChrome),
			Timeout:     15 * time.Second,
		},
		Server: ServerConfig{
			Addr:        ":5000",
			MetricsPort: 9090,
			SearchRate:  6,
		},
		SnapshotDir: "debug",
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path uses the defaults alone; a named file that does not exist is an
// error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var file Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := mergo.Merge(&cfg, file, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("config: merge %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		envLogLevel:       &c.Log.Level,
		envLogFormat:      &c.Log.Format,
		envStorageBackend: &c.Storage.Backend,
		envStorageDir:     &c.Storage.Dir,
		envStorageDSN:     &c.Storage.DSN,
		envCredentials:    &c.Session.CredentialPath,
		envControlURL:     &c.Browser.ControlURL,
		envBrowserBin:     &c.Browser.Bin,
		envProxyFile:      &c.Proxy.File,
		envSnapshotDir:    &c.SnapshotDir,
		envAddr:           &c.Server.Addr,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		envMetricsPort: &c.Server.MetricsPort,
		envMaxAttempts: &c.Session.MaxAttempts,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
	}

	if v := os.Getenv(envRequestDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envRequestDelay, err)
		}
		c.Session.RequestDelay = d
	}
	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	s := c.Session
	if s.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("session.max_attempts must be at least 1, got %d", s.MaxAttempts))
	}
	if s.RequestDelay < 0 {
		errs = append(errs, fmt.Errorf("session.request_delay must not be negative, got %s", s.RequestDelay))
	}
	if s.RateBudget < 1 {
		errs = append(errs, fmt.Errorf("session.rate_budget must be at least 1, got %d", s.RateBudget))
	}
	if s.MaxScrolls < 1 {
		errs = append(errs, fmt.Errorf("session.max_scrolls must be at least 1, got %d", s.MaxScrolls))
	}
	if s.EmptyPassThreshold < 1 {
		errs = append(errs, fmt.Errorf("session.empty_pass_threshold must be at least 1, got %d", s.EmptyPassThreshold))
	}
	if s.SettleMin < 0 || s.SettleMax < s.SettleMin {
		errs = append(errs, fmt.Errorf("session.settle_max (%s) must not be below settle_min (%s)", s.SettleMax, s.SettleMin))
	}

	if !validBackend(c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of %s", c.Storage.Backend, strings.Join(Backends, ", ")))
	}
	if c.Storage.Backend == BackendPostgres && c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required for the postgres backend"))
	}

	if _, err := fingerprint.ParseProfile(c.Preflight.Fingerprint); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}

func validBackend(name string) bool {
	for _, b := range Backends {
		if name == b {
			return true
		}
	}
	return false
}

// SessionConfig converts the session and browser sections for the
// orchestrator.
func (c Config) SessionConfig() session.Config {
	s := c.Session
	return session.Config{
		BaseURL:            s.BaseURL,
		CookieDomain:       s.CookieDomain,
		MaxAttempts:        s.MaxAttempts,
		RequestDelay:       s.RequestDelay,
		RateBudget:         s.RateBudget,
		MaxScrolls:         s.MaxScrolls,
		EmptyPassThreshold: s.EmptyPassThreshold,
		WaitTimeout:        s.WaitTimeout,
		PollInterval:       s.PollInterval,
		SettleMin:          s.SettleMin,
		SettleMax:          s.SettleMax,
		CredentialPath:     s.CredentialPath,
		Language:           s.Language,
		Headful:            c.Browser.Headful,
		NoSandbox:          c.Browser.NoSandbox,
		DisableHumanize:    s.DisableHumanize,
		SnapshotFinal:      s.SnapshotFinal,
	}
}

// PreflightConfig converts the preflight section, probing the session's
// base URL.
func (c Config) PreflightConfig() (preflight.Config, error) {
	profile, err := fingerprint.ParseProfile(c.Preflight.Fingerprint)
	if err != nil {
		return preflight.Config{}, err
	}
	return preflight.Config{
		URL:         c.Session.BaseURL,
		Fingerprint: profile,
		Timeout:     c.Preflight.Timeout,
		EnvProxy:    c.Preflight.EnvProxy,
	}, nil
}

// SQLitePath returns the sqlite DSN, defaulting to a file in the storage
// directory.
func (c Config) SQLitePath() string {
	if c.Storage.DSN != "" {
		return c.Storage.DSN
	}
	return filepath.Join(c.Storage.Dir, "twitlysis.db")
}
