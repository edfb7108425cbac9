package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server
	APIPort string

	// Redis (plan cache + execution rate limiting)
	RedisURL string

	// Plan cache
	PlanCacheTTL time.Duration

	// Execution rate limiting
	RateLimitPerMinute int
	RateLimitWindow    time.Duration

	// Planner
	GraphDepthCap int

	// Auth
	AuthSecretKey string

	// CORS
	AllowedOrigins []string

	// NL interpreter
	NLLocale string

	// App
	Environment string // development, staging, production
	LogLevel    string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		PlanCacheTTL:       getEnvDuration("PLAN_CACHE_TTL_SEC", 60*time.Second),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW_SEC", 60*time.Second),
		GraphDepthCap:      getEnvInt("GRAPH_DEPTH_CAP", 3),
		AuthSecretKey:      getEnv("AUTH_SECRET_KEY", ""),
		AllowedOrigins:     getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		NLLocale:           getEnv("NL_LOCALE", "en-US"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.GraphDepthCap <= 0 {
		return fmt.Errorf("GRAPH_DEPTH_CAP must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
