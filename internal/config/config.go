// Package config loads the authsession command-line configuration.
//
// Values start from Default, a TOML file overrides what it names and AUTHSESSION_*
// environment variables override the file. The file lives at
// ~/.authsession/config.toml unless a path is given.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/session"
	"github.com/MrEthical07/authsession/session/boltstore"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBolt   = "bolt"
)

const (
	dirName        = ".authsession"
	configFileName = "config.toml"
	boltFileName   = "session.db"
)

// Duration is a time.Duration written as a Go duration string ("15s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the full file model.
type Config struct {
	API     APIConfig     `toml:"api"`
	Session SessionConfig `toml:"session"`
	Routes  RoutesConfig  `toml:"routes"`
	Store   StoreConfig   `toml:"store"`
	Log     LogConfig     `toml:"log"`
	Audit   AuditConfig   `toml:"audit"`
	Metrics MetricsConfig `toml:"metrics"`
	DevAPI  DevAPIConfig  `toml:"devapi"`
}

type APIConfig struct {
	RegisterURL string   `toml:"register_url"`
	LoginURL    string   `toml:"login_url"`
	Timeout     Duration `toml:"timeout"`
	UserAgent   string   `toml:"user_agent"`
}

type SessionConfig struct {
	RearmOnRestore     bool     `toml:"rearm_on_restore"`
	DiscardStaleLogins bool     `toml:"discard_stale_logins"`
	ExpiryLeeway       Duration `toml:"expiry_leeway"`
}

type RoutesConfig struct {
	LoginPath     string `toml:"login_path"`
	DashboardPath string `toml:"dashboard_path"`
}

// StoreConfig selects where the session record is persisted.
type StoreConfig struct {
	// Backend is one of "memory", "redis" or "bolt".
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
	// BoltPath defaults to ~/.authsession/session.db.
	BoltPath string `toml:"bolt_path"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// Format is "text" or "json".
	Format string `toml:"format"`
}

type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
	// Path receives JSON lines; empty means stderr.
	Path string `toml:"path"`
	// Stderr also echoes events to stderr when Path is set.
	Stderr bool `toml:"stderr"`
}

type MetricsConfig struct {
	Enabled           bool `toml:"enabled"`
	LatencyHistograms bool `toml:"latency_histograms"`
	// Listen, when set, serves /metrics in Prometheus format on this address.
	Listen string `toml:"listen"`
}

// DevAPIConfig configures the local development API server.
type DevAPIConfig struct {
	Addr       string   `toml:"addr"`
	SigningKey string   `toml:"signing_key"`
	TokenTTL   Duration `toml:"token_ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	base := authsession.DefaultConfig()
	return &Config{
		API: APIConfig{
			RegisterURL: base.API.RegisterURL,
			LoginURL:    base.API.LoginURL,
			Timeout:     Duration{base.API.Timeout},
			UserAgent:   base.API.UserAgent,
		},
		Session: SessionConfig{
			RearmOnRestore:     base.Session.RearmOnRestore,
			DiscardStaleLogins: base.Session.DiscardStaleLogins,
			ExpiryLeeway:       Duration{base.Session.ExpiryLeeway},
		},
		Routes: RoutesConfig{
			LoginPath:     base.Routes.LoginPath,
			DashboardPath: base.Routes.DashboardPath,
		},
		Store: StoreConfig{
			Backend:     BackendBolt,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "authsession",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Audit: AuditConfig{
			Enabled:    base.Audit.Enabled,
			BufferSize: base.Audit.BufferSize,
			DropIfFull: base.Audit.DropIfFull,
		},
		Metrics: MetricsConfig{
			Enabled:           base.Metrics.Enabled,
			LatencyHistograms: base.Metrics.EnableLatencyHistograms,
		},
		DevAPI: DevAPIConfig{
			Addr:     "localhost:3000",
			TokenTTL: Duration{time.Hour},
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Dir returns ~/.authsession.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// DefaultPath returns ~/.authsession/config.toml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads path over the defaults, applies environment overrides and validates.
// With an empty path the default location is used when it exists; a missing explicit
// path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as TOML with owner-only permissions.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := Encode(file, cfg); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg *Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// ApplyEnvOverrides applies:
//   - AUTHSESSION_LOGIN_URL, AUTHSESSION_REGISTER_URL
//   - AUTHSESSION_STORE: store backend
//   - AUTHSESSION_REDIS_ADDR
//   - AUTHSESSION_BOLT_PATH
//   - AUTHSESSION_LOG_LEVEL, AUTHSESSION_LOG_FORMAT
//   - AUTHSESSION_DEVAPI_KEY: dev API signing key
func (c *Config) ApplyEnvOverrides() {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set("AUTHSESSION_LOGIN_URL", &c.API.LoginURL)
	set("AUTHSESSION_REGISTER_URL", &c.API.RegisterURL)
	set("AUTHSESSION_STORE", &c.Store.Backend)
	set("AUTHSESSION_REDIS_ADDR", &c.Store.RedisAddr)
	set("AUTHSESSION_BOLT_PATH", &c.Store.BoltPath)
	set("AUTHSESSION_LOG_LEVEL", &c.Log.Level)
	set("AUTHSESSION_LOG_FORMAT", &c.Log.Format)
	set("AUTHSESSION_DEVAPI_KEY", &c.DevAPI.SigningKey)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid field.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the file-only sections and then the manager configuration.
func (c *Config) Validate() error {
	var errs ValidateErrors

	for field, raw := range map[string]string{"api.login_url": c.API.LoginURL, "api.register_url": c.API.RegisterURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid URL %q", raw)})
		}
	}

	switch strings.ToLower(c.Store.Backend) {
	case BackendMemory, BackendBolt:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, ValidationError{Field: "store.redis_addr", Message: "required for the redis backend"})
		}
		if c.Store.RedisDB < 0 {
			errs = append(errs, ValidationError{Field: "store.redis_db", Message: "must be >= 0"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: memory, redis, bolt", c.Store.Backend),
		})
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{Field: "log.level", Message: err.Error()})
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, ValidationError{Field: "log.format", Message: fmt.Sprintf("invalid format '%s', must be text or json", c.Log.Format)})
	}

	if c.DevAPI.TokenTTL.Duration <= 0 {
		errs = append(errs, ValidationError{Field: "devapi.token_ttl", Message: "must be > 0"})
	}

	mc := c.Manager()
	if err := mc.Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "manager", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// WIRING
// =============================================================================

// Manager maps the file model onto the manager configuration.
func (c *Config) Manager() authsession.Config {
	mc := authsession.DefaultConfig()
	mc.API = authsession.APIConfig{
		RegisterURL: c.API.RegisterURL,
		LoginURL:    c.API.LoginURL,
		Timeout:     c.API.Timeout.Duration,
		UserAgent:   c.API.UserAgent,
	}
	mc.Session = authsession.SessionConfig{
		RearmOnRestore:     c.Session.RearmOnRestore,
		DiscardStaleLogins: c.Session.DiscardStaleLogins,
		ExpiryLeeway:       c.Session.ExpiryLeeway.Duration,
	}
	mc.Routes = authsession.RoutesConfig{
		LoginPath:     c.Routes.LoginPath,
		DashboardPath: c.Routes.DashboardPath,
	}
	mc.Audit = authsession.AuditConfig{
		Enabled:    c.Audit.Enabled,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
	mc.Metrics = authsession.MetricsConfig{
		Enabled:                 c.Metrics.Enabled,
		EnableLatencyHistograms: c.Metrics.Enabled && c.Metrics.LatencyHistograms,
	}
	return mc
}

// OpenStore opens the configured backend. The returned close function releases it and
// is never nil.
func (c *Config) OpenStore(ctx context.Context) (session.Store, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(c.Store.Backend) {
	case BackendMemory:
		return session.NewMemoryStore(), noop, nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.Store.RedisAddr,
			Password: c.Store.RedisPassword,
			DB:       c.Store.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("%w: %v", session.ErrBackendUnavailable, err)
		}
		inspector := jwt.NewInspector(jwt.WithEarlyExpiry(c.Session.ExpiryLeeway.Duration))
		store := session.NewRedisStore(client, c.Store.RedisPrefix, session.WithTTL(func(r *session.Record) (time.Duration, bool) {
			return inspector.TimeLeft(r.AccessToken)
		}))
		return store, client.Close, nil

	case BackendBolt:
		path := c.Store.BoltPath
		if path == "" {
			dir, err := Dir()
			if err != nil {
				return nil, noop, err
			}
			path = filepath.Join(dir, boltFileName)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, noop, fmt.Errorf("failed to create store directory: %w", err)
		}
		store, err := boltstore.Open(path, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown store backend %q", c.Store.Backend)
}

// Logger builds the slog logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// AuditSink returns the JSON-lines sink for the audit section. The close function is
// never nil.
func (c *Config) AuditSink(stderr io.Writer) (authsession.AuditSink, func() error, error) {
	noop := func() error { return nil }
	if !c.Audit.Enabled {
		return authsession.NoOpSink{}, noop, nil
	}
	if c.Audit.Path == "" {
		return authsession.NewJSONWriterSink(stderr), noop, nil
	}
	f, err := os.OpenFile(c.Audit.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open audit log: %w", err)
	}
	sink := authsession.AuditSink(authsession.NewJSONWriterSink(f))
	if c.Audit.Stderr {
		sink = authsession.MultiSink{sink, authsession.NewJSONWriterSink(stderr)}
	}
	return sink, f.Close, nil
}

var errUnknownLevel = errors.New("must be one of: debug, info, warn, error")

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid level '%s', %w", s, errUnknownLevel)
}
