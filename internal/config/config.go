package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/avatarstudio/internal/pipio"
)

// Config contains all runtime settings for the dashboard backend.
type Config struct {
	AppEnv                   string
	LogLevel                 string
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	PipioAPIKey          string
	PipioAvatarBaseURL   string
	PipioGenerateBaseURL string
	PipioListTimeout     time.Duration
	PipioSubmitTimeout   time.Duration

	CatalogCacheTTL     time.Duration
	CatalogUseFallback  bool
	AutoRefreshInterval time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		AppEnv:                   envOrDefault("APP_ENV", "production"),
		LogLevel:                 envOrDefault("APP_LOG_LEVEL", "info"),
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "avatarstudio"),
		AllowAnyOrigin:           false,
		PipioAPIKey:              stringsTrimSpace("PIPIO_API_KEY"),
		PipioAvatarBaseURL:       envOrDefault("PIPIO_AVATAR_BASE_URL", pipio.DefaultAvatarBaseURL),
		PipioGenerateBaseURL:     envOrDefault("PIPIO_GENERATE_BASE_URL", pipio.DefaultGenerateBaseURL),
		PipioListTimeout:         10 * time.Second,
		PipioSubmitTimeout:       30 * time.Second,
		CatalogCacheTTL:          10 * time.Minute,
		CatalogUseFallback:       false,
		AutoRefreshInterval:      10 * time.Second,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.PipioListTimeout, err = durationFromEnv("PIPIO_LIST_TIMEOUT", cfg.PipioListTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PipioSubmitTimeout, err = durationFromEnv("PIPIO_SUBMIT_TIMEOUT", cfg.PipioSubmitTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CatalogCacheTTL, err = durationFromEnv("CATALOG_CACHE_TTL", cfg.CatalogCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.CatalogUseFallback, err = boolFromEnv("CATALOG_USE_FALLBACK", cfg.CatalogUseFallback)
	if err != nil {
		return Config{}, err
	}
	refreshSeconds, err := intFromEnv("UI_AUTO_REFRESH_SECONDS", int(cfg.AutoRefreshInterval/time.Second))
	if err != nil {
		return Config{}, err
	}
	cfg.AutoRefreshInterval = time.Duration(refreshSeconds) * time.Second

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.PipioListTimeout <= 0 || cfg.PipioSubmitTimeout <= 0 {
		return Config{}, fmt.Errorf("PIPIO_LIST_TIMEOUT and PIPIO_SUBMIT_TIMEOUT must be positive")
	}
	if cfg.CatalogCacheTTL < 5*time.Minute || cfg.CatalogCacheTTL > time.Hour {
		return Config{}, fmt.Errorf("CATALOG_CACHE_TTL must be between 5m and 60m")
	}
	if refreshSeconds < 5 || refreshSeconds > 60 {
		return Config{}, fmt.Errorf("UI_AUTO_REFRESH_SECONDS must be between 5 and 60")
	}
	for key, raw := range map[string]string{
		"PIPIO_AVATAR_BASE_URL":   cfg.PipioAvatarBaseURL,
		"PIPIO_GENERATE_BASE_URL": cfg.PipioGenerateBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Config{}, fmt.Errorf("%s must be an absolute http(s) URL", key)
		}
	}
	switch cfg.AppEnv {
	case "development", "production", "test":
	default:
		return Config{}, fmt.Errorf("APP_ENV must be development, production or test")
	}

	return cfg, nil
}

// Development reports whether human-readable console logging is wanted.
func (c Config) Development() bool {
	return c.AppEnv == "development"
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
