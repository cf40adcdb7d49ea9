package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Bank backend
	BankAPIURL      string
	BankCallTimeout time.Duration

	// Bank OAuth2
	OAuthClientID     string
	OAuthClientSecret string
	OAuthAuthURL      string
	OAuthTokenURL     string
	OAuthRedirectURI  string

	// Database
	DatabaseURL string

	// Web Server
	WebBind      string
	WebUIBaseURL string
	CORSOrigins  []string

	// Session
	JWTSecret                string
	SessionTimeout           time.Duration
	SessionPromptOffset      time.Duration
	ActivityThrottle         time.Duration
	SessionTimeoutFromServer bool
	ReaperInterval           time.Duration

	LogLevel string
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Load uses os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		BankAPIURL:        strings.TrimRight(getenv("BANK_API_URL"), "/"),
		DatabaseURL:       getenv("DATABASE_URL"),
		OAuthClientID:     getenv("BANK_OAUTH_CLIENT_ID"),
		OAuthClientSecret: getenv("BANK_OAUTH_CLIENT_SECRET"),
		WebBind:           env("WEB_BIND", "0.0.0.0:3000"),
		OAuthRedirectURI:  env("BANK_OAUTH_REDIRECT_URI", "http://localhost:3000/api/auth/callback"),
		JWTSecret:         env("JWT_SECRET", "dev-only-change-me"),
		LogLevel:          env("LOG_LEVEL", "info"),
	}
	cfg.OAuthAuthURL = env("BANK_OAUTH_AUTH_URL", cfg.BankAPIURL+"/oauth2/authorize")
	cfg.OAuthTokenURL = env("BANK_OAUTH_TOKEN_URL", cfg.BankAPIURL+"/oauth2/token")

	// Extract base URL from redirect URI; the web UI is the only default CORS origin
	cfg.WebUIBaseURL = extractBaseURL(cfg.OAuthRedirectURI)
	cfg.CORSOrigins = splitList(env("CORS_ORIGINS", cfg.WebUIBaseURL))

	var err error
	if cfg.SessionTimeout, err = minutes(env("SESSION_TIMEOUT_MINUTES", "20")); err != nil {
		return nil, fmt.Errorf("SESSION_TIMEOUT_MINUTES: %w", err)
	}
	if cfg.SessionPromptOffset, err = minutes(env("SESSION_PROMPT_OFFSET_MINUTES", "1")); err != nil {
		return nil, fmt.Errorf("SESSION_PROMPT_OFFSET_MINUTES: %w", err)
	}
	if cfg.ActivityThrottle, err = seconds(env("SESSION_ACTIVITY_THROTTLE_SECONDS", "60")); err != nil {
		return nil, fmt.Errorf("SESSION_ACTIVITY_THROTTLE_SECONDS: %w", err)
	}
	if cfg.BankCallTimeout, err = seconds(env("BANK_CALL_TIMEOUT_SECONDS", "10")); err != nil {
		return nil, fmt.Errorf("BANK_CALL_TIMEOUT_SECONDS: %w", err)
	}
	if cfg.ReaperInterval, err = seconds(env("REAPER_INTERVAL_SECONDS", "60")); err != nil {
		return nil, fmt.Errorf("REAPER_INTERVAL_SECONDS: %w", err)
	}
	if cfg.SessionTimeoutFromServer, err = strconv.ParseBool(env("SESSION_TIMEOUT_FROM_SERVER", "false")); err != nil {
		return nil, fmt.Errorf("SESSION_TIMEOUT_FROM_SERVER: %w", err)
	}

	if cfg.BankAPIURL == "" {
		return nil, fmt.Errorf("BANK_API_URL is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OAuthClientID == "" {
		return nil, fmt.Errorf("BANK_OAUTH_CLIENT_ID is required")
	}
	if cfg.OAuthClientSecret == "" {
		return nil, fmt.Errorf("BANK_OAUTH_CLIENT_SECRET is required")
	}
	if cfg.SessionPromptOffset >= cfg.SessionTimeout {
		return nil, fmt.Errorf("SESSION_PROMPT_OFFSET_MINUTES must be smaller than SESSION_TIMEOUT_MINUTES")
	}

	return cfg, nil
}

func minutes(s string) (time.Duration, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return time.Duration(n) * time.Minute, nil
}

func seconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return time.Duration(n) * time.Second, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func extractBaseURL(redirectURI string) string {
	// e.g., "http://localhost:3000/api/auth/callback" -> "http://localhost:3000"
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}

	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
