// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// PlatformConfig holds the remote platform endpoints and credentials.
type PlatformConfig struct {
	AccountHost   string // account console base URL (token endpoint, account-level identity)
	WorkspaceHost string // workspace base URL (compute, workspace, catalog APIs)
	AccountID     string // account id for account-level identity paths

	// OAuth client credentials. When both are set, tokens are acquired via
	// the client-credentials exchange; otherwise StaticToken is used as-is.
	ClientID     string
	ClientSecret string
	StaticToken  string

	RequestTimeout time.Duration // per-attempt HTTP timeout (default 12s)
	MaxAttempts    int           // transport retry budget per request (default 2)
}

// OAuthEnabled returns true when client-credentials auth is configured.
func (p *PlatformConfig) OAuthEnabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Validate checks that the platform configuration is usable.
func (p *PlatformConfig) Validate() error {
	if p.AccountHost == "" && p.WorkspaceHost == "" {
		return fmt.Errorf("at least one of PLATFORM_ACCOUNT_HOST or PLATFORM_WORKSPACE_HOST must be set")
	}
	if p.OAuthEnabled() && (p.AccountHost == "" || p.AccountID == "") {
		return fmt.Errorf("PLATFORM_ACCOUNT_HOST and PLATFORM_ACCOUNT_ID are required for OAuth client credentials")
	}
	if !p.OAuthEnabled() && p.StaticToken == "" {
		return fmt.Errorf("set PLATFORM_CLIENT_ID/PLATFORM_CLIENT_SECRET or PLATFORM_TOKEN")
	}
	return nil
}

// AuditConfig holds audit trail persistence settings.
type AuditConfig struct {
	DBPath            string // SQLite path for the primary store; empty disables it
	FallbackPath      string // CSV path for the fallback store
	RetentionDays     int    // purge records older than this (default 365)
	RetentionSchedule string // cron schedule for the purge; empty disables the sweep
}

// Config holds the configuration for the provisioning service.
type Config struct {
	Platform PlatformConfig
	Audit    AuditConfig

	ListenAddr string // HTTP listen address (default ":8080")
	AdminEmail string // default admin recorded on audit entries when the caller omits one
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 50)
	RateLimitBurst int     // burst capacity (default 100)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the service is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Platform: PlatformConfig{
			AccountHost:   os.Getenv("PLATFORM_ACCOUNT_HOST"),
			WorkspaceHost: os.Getenv("PLATFORM_WORKSPACE_HOST"),
			AccountID:     os.Getenv("PLATFORM_ACCOUNT_ID"),
			ClientID:      os.Getenv("PLATFORM_CLIENT_ID"),
			ClientSecret:  os.Getenv("PLATFORM_CLIENT_SECRET"),
			StaticToken:   os.Getenv("PLATFORM_TOKEN"),
		},
		Audit: AuditConfig{
			DBPath:            os.Getenv("AUDIT_DB_PATH"),
			FallbackPath:      os.Getenv("AUDIT_FALLBACK_PATH"),
			RetentionSchedule: os.Getenv("AUDIT_RETENTION_SCHEDULE"),
		},
		ListenAddr: os.Getenv("LISTEN_ADDR"),
		AdminEmail: os.Getenv("ADMIN_EMAIL"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		Env:        os.Getenv("ENV"),
	}

	if v := os.Getenv("PLATFORM_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Platform.RequestTimeout = d
		}
	}
	if v := os.Getenv("PLATFORM_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Platform.MaxAttempts = n
		}
	}
	if v := os.Getenv("AUDIT_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audit.RetentionDays = n
		}
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Platform.RequestTimeout == 0 {
		cfg.Platform.RequestTimeout = 12 * time.Second
	}
	if cfg.Platform.MaxAttempts == 0 {
		cfg.Platform.MaxAttempts = 2
	}
	if cfg.Audit.DBPath == "" && cfg.Audit.FallbackPath == "" {
		cfg.Audit.DBPath = "dpm_audit.sqlite"
		cfg.Audit.FallbackPath = "dpm_audit_fallback.csv"
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 365
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 50
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 100
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if err := cfg.Platform.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Platform.OAuthEnabled() {
		cfg.Warnings = append(cfg.Warnings, "OAuth client credentials not configured — the static PLATFORM_TOKEN does not refresh")
	}
	if cfg.Audit.DBPath == "" {
		cfg.Warnings = append(cfg.Warnings, "AUDIT_DB_PATH not set — audit records go to the CSV fallback only")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if !cfg.Platform.OAuthEnabled() {
			return nil, fmt.Errorf("OAuth client credentials must be configured in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
