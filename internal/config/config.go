// Package config loads service configuration from an optional YAML file and
// the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	ProviderSupabase = "supabase"
	ProviderLocal    = "local"
)

var (
	ErrMissingDatabaseURL      = errors.New("config: DATABASE_URL is required")
	ErrMissingSupabaseURL      = errors.New("config: SUPABASE_URL is required for the supabase provider")
	ErrMissingSupabaseKey      = errors.New("config: SUPABASE_ANON_KEY is required for the supabase provider")
	ErrMissingSupabaseSecret   = errors.New("config: SUPABASE_JWT_SECRET is required for the supabase provider")
	ErrMissingLocalJWTSecret   = errors.New("config: LOCAL_JWT_SECRET is required for the local provider")
	ErrUnsupportedProvider     = errors.New("config: unsupported auth provider")
	ErrNonPositiveGuardTimeout = errors.New("config: guard timeout must be positive")
)

// Config holds the service configuration.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level"`

	Auth      AuthConfig      `yaml:"auth"`
	Guard     GuardConfig     `yaml:"guard"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type AuthConfig struct {
	// Provider is "supabase" or "local".
	Provider string `yaml:"provider"`

	SupabaseURL       string `yaml:"supabase_url"`
	SupabaseAnonKey   string `yaml:"supabase_anon_key"`
	SupabaseJWTSecret string `yaml:"supabase_jwt_secret"`

	LocalJWTSecret string `yaml:"local_jwt_secret"`

	// CookieSecure sets the Secure flag on session cookies.
	CookieSecure bool `yaml:"cookie_secure"`
}

type GuardConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	// Login requests per second per client IP.
	LoginRate  float64 `yaml:"login_rate"`
	LoginBurst int     `yaml:"login_burst"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:     "5050",
		LogLevel: "info",
		Auth: AuthConfig{
			Provider: ProviderSupabase,
		},
		Guard: GuardConfig{Timeout: 10 * time.Second},
		CORS: CORSConfig{AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}},
		RateLimit: RateLimitConfig{LoginRate: 1, LoginBurst: 5},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// FITLINK_CONFIG if set, then environment variables. The result is validated.
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("FITLINK_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Auth.Provider = strings.ToLower(strings.TrimSpace(getEnv("AUTH_PROVIDER", c.Auth.Provider)))
	c.Auth.SupabaseURL = strings.TrimRight(getEnv("SUPABASE_URL", c.Auth.SupabaseURL), "/")
	c.Auth.SupabaseAnonKey = getEnv("SUPABASE_ANON_KEY", c.Auth.SupabaseAnonKey)
	c.Auth.SupabaseJWTSecret = getEnv("SUPABASE_JWT_SECRET", c.Auth.SupabaseJWTSecret)
	c.Auth.LocalJWTSecret = getEnv("LOCAL_JWT_SECRET", c.Auth.LocalJWTSecret)

	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid COOKIE_SECURE: %w", err)
		}
		c.Auth.CookieSecure = b
	}

	if v := os.Getenv("GUARD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid GUARD_TIMEOUT format: %w", err)
		}
		c.Guard.Timeout = d
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.AllowedOrigins = origins
	}

	if v := os.Getenv("LOGIN_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid LOGIN_RATE: %w", err)
		}
		c.RateLimit.LoginRate = f
	}
	if v := os.Getenv("LOGIN_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LOGIN_BURST: %w", err)
		}
		c.RateLimit.LoginBurst = n
	}
	return nil
}

// Validate checks that the configuration is usable for the selected provider.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Guard.Timeout <= 0 {
		return ErrNonPositiveGuardTimeout
	}

	switch c.Auth.Provider {
	case ProviderSupabase:
		if c.Auth.SupabaseURL == "" {
			return ErrMissingSupabaseURL
		}
		if c.Auth.SupabaseAnonKey == "" {
			return ErrMissingSupabaseKey
		}
		if c.Auth.SupabaseJWTSecret == "" {
			return ErrMissingSupabaseSecret
		}
	case ProviderLocal:
		if c.Auth.LocalJWTSecret == "" {
			return ErrMissingLocalJWTSecret
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProvider, c.Auth.Provider)
	}
	return nil
}

// getEnv returns the value of key, reading key_FILE first when set.
func getEnv(key, fallback string) string {
	if file := os.Getenv(key + "_FILE"); file != "" {
		if content, err := os.ReadFile(file); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
