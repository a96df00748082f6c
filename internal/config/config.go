// Package config builds the server configuration from environment variables.
//
// Load is called once in main; the resulting Config is passed down to the
// server, which hands each component only the values it needs. Nothing else
// in the module reads the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/student-registry/internal/auth"
	sqliteRepo "github.com/sakif/student-registry/internal/repository/sqlite"
)

// Defaults used when the corresponding variable is unset.
const (
	DefaultPort             = 8080
	DefaultDatabaseURL      = "sqlite:///./student_registry.db"
	DefaultAccessTokenTTL   = 30 * time.Minute
	DefaultRememberTokenTTL = 7 * 24 * time.Hour
	DefaultAdminSessionTTL  = time.Hour
)

// MinSecretLength is the shortest JWT_SECRET accepted.
const MinSecretLength = 16

// Config is every setting the server needs.
type Config struct {
	Port int

	// DBPath is the SQLite path derived from DATABASE_URL (or DB_PATH).
	DBPath string

	JWTSecret        string
	AccessTokenTTL   time.Duration
	RememberTokenTTL time.Duration

	// AdminPassword is the shared admin credential. Empty disables the admin
	// login: every attempt is rejected.
	AdminPassword   string
	AdminSessionTTL time.Duration

	BcryptCost int

	CORSAllowedOrigins []string
	CookieSecure       bool

	LogLevel slog.Level
}

// Load reads the configuration through getenv (os.Getenv in production, a
// map lookup in tests) and validates it. All problems are reported at once.
//
//	cfg, err := config.Load(os.Getenv)
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:               DefaultPort,
		AccessTokenTTL:     DefaultAccessTokenTTL,
		RememberTokenTTL:   DefaultRememberTokenTTL,
		AdminSessionTTL:    DefaultAdminSessionTTL,
		BcryptCost:         auth.DefaultCost,
		CORSAllowedOrigins: []string{"*"},
		LogLevel:           slog.LevelInfo,
	}

	var errs []error

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("PORT: invalid port %q", v))
		} else {
			cfg.Port = port
		}
	}

	dbURL := getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = getenv("DB_PATH")
	}
	if dbURL == "" {
		dbURL = DefaultDatabaseURL
	}
	path, err := sqliteRepo.ParseURL(dbURL)
	if err != nil {
		errs = append(errs, fmt.Errorf("DATABASE_URL: %w", err))
	}
	cfg.DBPath = path

	cfg.JWTSecret = getenv("JWT_SECRET")
	switch {
	case cfg.JWTSecret == "":
		errs = append(errs, errors.New("JWT_SECRET: must be set"))
	case len(cfg.JWTSecret) < MinSecretLength:
		errs = append(errs, fmt.Errorf("JWT_SECRET: must be at least %d characters", MinSecretLength))
	}

	cfg.AdminPassword = getenv("ADMIN_PASSWORD")

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"REMEMBER_TOKEN_TTL", &cfg.RememberTokenTTL},
		{"ADMIN_SESSION_TTL", &cfg.AdminSessionTTL},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", d.key, v))
			continue
		}
		*d.dst = parsed
	}

	if v := getenv("BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			errs = append(errs, fmt.Errorf("BCRYPT_COST: must be an integer between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
		} else {
			cfg.BcryptCost = cost
		}
	}

	if v := getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	if v := getenv("COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COOKIE_SECURE: invalid boolean %q", v))
		} else {
			cfg.CookieSecure = secure
		}
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		// slog.Level understands "debug", "info", "warn", "error" and offsets like "info+2".
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// AdminEnabled reports whether an admin password is configured.
func (c *Config) AdminEnabled() bool {
	return c.AdminPassword != ""
}

// splitList splits a comma separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
