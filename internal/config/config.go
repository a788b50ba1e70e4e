// Package config loads process configuration from ALWR_-prefixed
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Modes. The mode is an explicit configuration value: security defaults
// (notably the admin IP whitelist) key off it, never off ad-hoc string
// comparisons against deployment names.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config is the full runtime configuration of alwr-api.
type Config struct {
	Mode       string
	ListenAddr string
	PGDSN      string

	SessionSecret  string
	SessionTTL     time.Duration
	SessionIdleTTL time.Duration

	AdminIPs []string

	OIDCIssuer   string
	OIDCClientID string
	OIDCSecret   string

	SettingsTTL time.Duration

	LoginRateBurst     int
	LoginRatePerSecond int
}

// Load reads configuration from the environment and applies defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALWR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("mode", ModeProduction)
	v.SetDefault("addr", ":8080")
	v.SetDefault("session_ttl", 12*time.Hour)
	v.SetDefault("session_idle_ttl", 30*time.Minute)
	v.SetDefault("settings_ttl", time.Minute)
	v.SetDefault("login_rate_burst", 10)
	v.SetDefault("login_rate_per_second", 3)

	cfg := Config{
		Mode:               strings.ToLower(strings.TrimSpace(v.GetString("mode"))),
		ListenAddr:         v.GetString("addr"),
		PGDSN:              v.GetString("pg_dsn"),
		SessionSecret:      v.GetString("session_secret"),
		SessionTTL:         v.GetDuration("session_ttl"),
		SessionIdleTTL:     v.GetDuration("session_idle_ttl"),
		AdminIPs:           splitList(v.GetString("admin_ips")),
		OIDCIssuer:         v.GetString("oidc_issuer"),
		OIDCClientID:       v.GetString("oidc_client_id"),
		OIDCSecret:         v.GetString("oidc_secret"),
		SettingsTTL:        v.GetDuration("settings_ttl"),
		LoginRateBurst:     v.GetInt("login_rate_burst"),
		LoginRatePerSecond: v.GetInt("login_rate_per_second"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Mode != ModeDevelopment && c.Mode != ModeProduction {
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}
	if c.Mode == ModeProduction {
		if c.SessionSecret == "" {
			return errors.New("config: ALWR_SESSION_SECRET is required in production")
		}
		if c.PGDSN == "" {
			return errors.New("config: ALWR_PG_DSN is required in production")
		}
	}
	return nil
}

// Development reports whether the process runs with relaxed, fail-open
// defaults. Everything else is fail-closed.
func (c Config) Development() bool {
	return c.Mode == ModeDevelopment
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
