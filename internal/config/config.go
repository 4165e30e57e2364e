package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort               = "8080"
	defaultEnvironment        = "local-dev"
	defaultProjectTag         = "the-oracle"
	defaultAnthropicModel     = "claude-sonnet-4-5-20250929"
	defaultAnthropicBaseURL   = "https://api.anthropic.com"
	defaultTavilyBaseURL      = "https://api.tavily.com"
	defaultMaxIterations      = 3
	defaultQualityThreshold   = 0.7
	defaultCacheTTLHours      = 24
	defaultSearchMaxResults   = 5
	defaultSearchMaxRetries   = 3
	defaultSearchRetryDelayMS = 1000
)

type Config struct {
	Port        string
	Environment string
	ProjectTag  string

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string

	TavilyAPIKey  string
	TavilyBaseURL string

	MaxResearchIterations int
	QualityThreshold      float64

	EnableCaching bool
	CacheTTL      time.Duration

	DatabaseURL       string
	DatabaseAuthToken string

	SearchMaxResults int
	SearchMaxRetries int
	SearchRetryDelay time.Duration

	AllowedOrigins []string
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// PersistenceConfigured reports whether a database was supplied. Caching and
// report storage are silently disabled without one.
func (c Config) PersistenceConfigured() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

func Load() (Config, error) {
	cfg := Config{
		Port:                  envOrDefault("PORT", defaultPort),
		Environment:           envOrDefault("ENVIRONMENT", defaultEnvironment),
		ProjectTag:            envOrDefault("PROJECT_TAG", defaultProjectTag),
		AnthropicAPIKey:       strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicModel:        envOrDefault("ANTHROPIC_MODEL", defaultAnthropicModel),
		AnthropicBaseURL:      envOrDefault("ANTHROPIC_BASE_URL", defaultAnthropicBaseURL),
		TavilyAPIKey:          strings.TrimSpace(os.Getenv("TAVILY_API_KEY")),
		TavilyBaseURL:         envOrDefault("TAVILY_BASE_URL", defaultTavilyBaseURL),
		MaxResearchIterations: intOrDefault("MAX_RESEARCH_ITERATIONS", defaultMaxIterations),
		QualityThreshold:      floatOrDefault("QUALITY_THRESHOLD", defaultQualityThreshold),
		EnableCaching:         boolOrDefault("ENABLE_CACHING", true),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseAuthToken:     strings.TrimSpace(os.Getenv("DATABASE_AUTH_TOKEN")),
		SearchMaxResults:      intOrDefault("SEARCH_MAX_RESULTS", defaultSearchMaxResults),
		SearchMaxRetries:      intOrDefault("SEARCH_MAX_RETRIES", defaultSearchMaxRetries),
	}

	if cfg.MaxResearchIterations < 1 || cfg.MaxResearchIterations > 10 {
		return Config{}, errors.New("MAX_RESEARCH_ITERATIONS must be between 1 and 10")
	}
	if cfg.QualityThreshold < 0 || cfg.QualityThreshold > 1 {
		return Config{}, errors.New("QUALITY_THRESHOLD must be between 0.0 and 1.0")
	}

	ttlHours := intOrDefault("CACHE_TTL_HOURS", defaultCacheTTLHours)
	if ttlHours < 1 || ttlHours > 168 {
		return Config{}, errors.New("CACHE_TTL_HOURS must be between 1 and 168")
	}
	cfg.CacheTTL = time.Duration(ttlHours) * time.Hour

	if cfg.SearchMaxResults < 1 {
		return Config{}, errors.New("SEARCH_MAX_RESULTS must be >= 1")
	}
	if cfg.SearchMaxRetries < 1 {
		return Config{}, errors.New("SEARCH_MAX_RETRIES must be >= 1")
	}

	retryDelayMS := intOrDefault("SEARCH_RETRY_DELAY_MS", defaultSearchRetryDelayMS)
	if retryDelayMS < 0 {
		return Config{}, errors.New("SEARCH_RETRY_DELAY_MS must be >= 0")
	}
	cfg.SearchRetryDelay = time.Duration(retryDelayMS) * time.Millisecond

	if strings.HasPrefix(cfg.DatabaseURL, "libsql://") && cfg.DatabaseAuthToken == "" {
		return Config{}, errors.New("DATABASE_AUTH_TOKEN is required for libsql:// URLs")
	}

	// Caching needs somewhere to cache. Dropping it is advisory, not fatal.
	if cfg.EnableCaching && !cfg.PersistenceConfigured() {
		cfg.EnableCaching = false
	}

	cfg.AllowedOrigins = parseList(envOrDefault("CORS_ALLOWED_ORIGINS", "*"))
	if len(cfg.AllowedOrigins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func boolOrDefault(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func floatOrDefault(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
