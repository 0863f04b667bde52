package main

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "CIRCUIT_NAME", "NATS_URL", "NEO4J_URL", "RATE_LIMIT", "RATE_BURST", "EXPORT_DEBOUNCE", "MAX_CYCLES", "CYCLE_SEARCH_STEPS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" || cfg.CircuitName != "default" || cfg.NATSPrefix != "circuit" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.NATSURL != "" || cfg.Neo4jURL != "" {
		t.Fatal("integrations should be disabled by default")
	}
	if cfg.RateLimit != 20 || cfg.RateBurst != 40 || cfg.ExportDebounce != 2*time.Second || cfg.MaxCycles != 10000 || cfg.SearchSteps != 1<<20 {
		t.Fatalf("unexpected numeric defaults %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected log level %v", cfg.LogLevel)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("EXPORT_DEBOUNCE", "500ms")
	t.Setenv("MAX_CYCLES", "0")
	t.Setenv("CYCLE_SEARCH_STEPS", "5000")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9090" || cfg.LogLevel != slog.LevelDebug || cfg.ExportDebounce != 500*time.Millisecond || cfg.MaxCycles != 0 || cfg.SearchSteps != 5000 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"RATE_LIMIT":         "fast",
		"RATE_BURST":         "many",
		"EXPORT_DEBOUNCE":    "soon",
		"MAX_CYCLES":         "lots",
		"CYCLE_SEARCH_STEPS": "forever",
		"LOG_LEVEL":          "chatty",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := loadConfig(); err == nil {
				t.Fatalf("expected error for %s=%q", key, val)
			}
		})
	}
}

func TestNilAdapters(t *testing.T) {
	if graphOrNil(nil) != nil || exporterOrNil(nil) != nil {
		t.Fatal("nil stores must stay nil interfaces")
	}
}
