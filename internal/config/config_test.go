package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("TAVILY_API_KEY", "test-key")
	t.Setenv("DATABASE_URL", "file:oracle.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.MaxResearchIterations != 3 {
		t.Fatalf("expected default 3 iterations, got %d", cfg.MaxResearchIterations)
	}
	if cfg.QualityThreshold != 0.7 {
		t.Fatalf("expected default 0.7 threshold, got %v", cfg.QualityThreshold)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Fatalf("expected default 24h cache ttl, got %v", cfg.CacheTTL)
	}
	if !cfg.EnableCaching {
		t.Fatal("expected caching enabled when database is configured")
	}
	if cfg.AnthropicBaseURL != "https://api.anthropic.com" {
		t.Fatalf("unexpected anthropic base url: %s", cfg.AnthropicBaseURL)
	}
	if cfg.TavilyBaseURL != "https://api.tavily.com" {
		t.Fatalf("unexpected tavily base url: %s", cfg.TavilyBaseURL)
	}
	if cfg.SearchMaxRetries != 3 || cfg.SearchRetryDelay != time.Second {
		t.Fatalf("unexpected search retry defaults: retries=%d delay=%v", cfg.SearchMaxRetries, cfg.SearchRetryDelay)
	}
}

func TestLoadDisablesCachingWithoutDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENABLE_CACHING", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EnableCaching {
		t.Fatal("expected caching disabled when DATABASE_URL is absent")
	}
	if cfg.PersistenceConfigured() {
		t.Fatal("expected persistence unconfigured")
	}
}

func TestLoadRejectsIterationsOutOfRange(t *testing.T) {
	t.Setenv("MAX_RESEARCH_ITERATIONS", "11")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for MAX_RESEARCH_ITERATIONS=11")
	}

	t.Setenv("MAX_RESEARCH_ITERATIONS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for MAX_RESEARCH_ITERATIONS=0")
	}
}

func TestLoadRejectsThresholdOutOfRange(t *testing.T) {
	t.Setenv("MAX_RESEARCH_ITERATIONS", "3")
	t.Setenv("QUALITY_THRESHOLD", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for QUALITY_THRESHOLD=1.5")
	}
}

func TestLoadRejectsCacheTTLOutOfRange(t *testing.T) {
	t.Setenv("QUALITY_THRESHOLD", "0.7")
	t.Setenv("CACHE_TTL_HOURS", "169")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for CACHE_TTL_HOURS=169")
	}
}

func TestLoadRequiresAuthTokenForLibsqlURL(t *testing.T) {
	t.Setenv("CACHE_TTL_HOURS", "24")
	t.Setenv("DATABASE_URL", "libsql://oracle.example.turso.io")
	t.Setenv("DATABASE_AUTH_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_AUTH_TOKEN is missing for libsql URL")
	}
}
