package authsession

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.API.LoginURL != "http://localhost:3000/login" || cfg.API.RegisterURL != "http://localhost:3000/register" {
		t.Fatalf("unexpected default endpoints %+v", cfg.API)
	}
	if !cfg.Session.RearmOnRestore || !cfg.Session.DiscardStaleLogins {
		t.Fatalf("expected restore re-arm and stale-login discard on by default")
	}
	if cfg.Routes.LoginPath != "/auth/login" || cfg.Routes.DashboardPath != "/dashboard" {
		t.Fatalf("unexpected routes %+v", cfg.Routes)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "leeway within bound",
			mutate:    func(c *Config) { c.Session.ExpiryLeeway = 30 * time.Second },
			wantValid: true,
		},
		{
			name:      "leeway negative",
			mutate:    func(c *Config) { c.Session.ExpiryLeeway = -time.Second },
			wantValid: false,
		},
		{
			name:      "leeway too large",
			mutate:    func(c *Config) { c.Session.ExpiryLeeway = 10 * time.Minute },
			wantValid: false,
		},
		{
			name:      "negative timeout",
			mutate:    func(c *Config) { c.API.Timeout = -time.Second },
			wantValid: false,
		},
		{
			name:      "relative login path",
			mutate:    func(c *Config) { c.Routes.LoginPath = "auth/login" },
			wantValid: false,
		},
		{
			name:      "empty dashboard path allowed",
			mutate:    func(c *Config) { c.Routes.DashboardPath = "" },
			wantValid: true,
		},
		{
			name:      "relative dashboard path",
			mutate:    func(c *Config) { c.Routes.DashboardPath = "dashboard" },
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name:      "negative audit buffer",
			mutate:    func(c *Config) { c.Audit.BufferSize = -1 },
			wantValid: false,
		},
		{
			name: "histograms without metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
