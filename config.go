package authsession

import (
	"errors"
	"strings"
	"time"
)

const maxExpiryLeeway = 5 * time.Minute

// Config is the full manager configuration. Start from DefaultConfig and override.
type Config struct {
	API     APIConfig
	Session SessionConfig
	Routes  RoutesConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the remote authentication endpoints. It is ignored when an API
// implementation is injected with [Builder.WithAPI].
type APIConfig struct {
	RegisterURL string
	LoginURL    string
	Timeout     time.Duration
	UserAgent   string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes session lifecycle behavior.
type SessionConfig struct {
	// RearmOnRestore arms auto-logout from the restored token's expiration. With
	// false, a restored session only ends on explicit logout or the next restore.
	RearmOnRestore bool
	// DiscardStaleLogins drops a login response that arrives after a later logout or
	// login started, returning ErrLoginSuperseded. With false the late response is
	// applied and a warning is logged.
	DiscardStaleLogins bool
	// ExpiryLeeway ends sessions this long before the token's exp claim.
	ExpiryLeeway time.Duration
}

// RoutesConfig holds the view paths the manager and its callers navigate to.
type RoutesConfig struct {
	LoginPath     string
	DashboardPath string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			RegisterURL: "http://localhost:3000/register",
			LoginURL:    "http://localhost:3000/login",
			Timeout:     15 * time.Second,
			UserAgent:   "authsession",
		},
		Session: SessionConfig{
			RearmOnRestore:     true,
			DiscardStaleLogins: true,
		},
		Routes: RoutesConfig{
			LoginPath:     "/auth/login",
			DashboardPath: "/dashboard",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}

	if c.Session.ExpiryLeeway < 0 {
		return errors.New("Session ExpiryLeeway must be >= 0")
	}
	if c.Session.ExpiryLeeway > maxExpiryLeeway {
		return errors.New("Session ExpiryLeeway must be <= 5m")
	}

	if !strings.HasPrefix(c.Routes.LoginPath, "/") {
		return errors.New("Routes LoginPath must be an absolute path")
	}
	if c.Routes.DashboardPath != "" && !strings.HasPrefix(c.Routes.DashboardPath, "/") {
		return errors.New("Routes DashboardPath must be an absolute path")
	}

	if c.Audit.BufferSize < 0 {
		return errors.New("Audit BufferSize must be >= 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize == 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}
