package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("OPPORTUNITY_CACHE_TTL", "")
	t.Setenv("FHIR_FETCH_TIMEOUT", "")
	t.Setenv("ENHANCEMENT_ENABLED", "")
	t.Setenv("REDIS_ADDR", "")
	cfg := Load()
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %s", cfg.LogLevel)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Fatalf("expected default cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Fatalf("expected default fetch timeout, got %s", cfg.FetchTimeout)
	}
	if cfg.EnhancementEnabled {
		t.Fatalf("expected enhancement disabled by default")
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected redis disabled by default, got %s", cfg.RedisAddr)
	}
	if cfg.OpportunityJobsTable != "opportunity_jobs" {
		t.Fatalf("expected default jobs table, got %s", cfg.OpportunityJobsTable)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("OPPORTUNITY_CACHE_TTL", "90s")
	t.Setenv("FHIR_FETCH_TIMEOUT", "2s")
	t.Setenv("ENHANCEMENT_ENABLED", "true")
	t.Setenv("WORKER_COUNT", "6")
	t.Setenv("DEFAULT_MIN_CONFIDENCE", "0.65")
	t.Setenv("RULE_CATALOG_RELOAD_INTERVAL", "5m")
	cfg := Load()
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Fatalf("expected cache ttl override, got %s", cfg.CacheTTL)
	}
	if cfg.FetchTimeout != 2*time.Second {
		t.Fatalf("expected fetch timeout override, got %s", cfg.FetchTimeout)
	}
	if !cfg.EnhancementEnabled {
		t.Fatalf("expected enhancement enabled")
	}
	if cfg.WorkerCount != 6 {
		t.Fatalf("expected worker count override, got %d", cfg.WorkerCount)
	}
	if cfg.DefaultMinConfidence != 0.65 {
		t.Fatalf("expected min confidence override, got %f", cfg.DefaultMinConfidence)
	}
	if cfg.RuleCatalogReloadInterval != 5*time.Minute {
		t.Fatalf("expected reload interval override, got %s", cfg.RuleCatalogReloadInterval)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("OPPORTUNITY_CACHE_TTL", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Fatalf("expected default cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls false")
	}
}
