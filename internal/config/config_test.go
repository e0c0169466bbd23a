package config

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.BaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected address config %q %q", cfg.Port, cfg.BaseURL)
	}
	if cfg.QueueSize != 10 || cfg.QueueConfirmTimeout != 60*time.Second {
		t.Fatalf("unexpected queue config %d %s", cfg.QueueSize, cfg.QueueConfirmTimeout)
	}
	if len(cfg.MapPool) != 7 || cfg.MapPool[0] != "de_dust2" {
		t.Fatalf("unexpected map pool %v", cfg.MapPool)
	}
	if cfg.MatchMapCount != 1 {
		t.Fatalf("expected 1 map per match, got %d", cfg.MatchMapCount)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUEUE_SIZE", "4")
	t.Setenv("QUEUE_CONFIRM_TIMEOUT", "15s")
	t.Setenv("MATCH_MAP_COUNT", "3")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QueueSize != 4 || cfg.QueueConfirmTimeout != 15*time.Second || cfg.MatchMapCount != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if _, err := cfg.Logger(); err != nil {
		t.Fatalf("Logger: %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"unparsable", "QUEUE_SIZE", "many", "parse env:"},
		{"queue too small", "QUEUE_SIZE", "1", "QUEUE_SIZE"},
		{"even map count", "MATCH_MAP_COUNT", "2", "MATCH_MAP_COUNT"},
		{"small pool", "MAP_POOL", "de_dust2,de_nuke", "MAP_POOL"},
		{"duplicates do not count", "MAP_POOL", "a,b,c,d,e,f,a", "MAP_POOL"},
		{"large pool", "MAP_POOL", "a,b,c,d,e,f,g,h", "MAP_POOL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadNormalizesMapPool(t *testing.T) {
	t.Setenv("MAP_POOL", " a,b,,c,d ,e,f,g")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(cfg.MapPool, []string{"a", "b", "c", "d", "e", "f", "g"}) {
		t.Fatalf("unexpected map pool %q", cfg.MapPool)
	}
}

func TestLoggerRejectsUnknownLevel(t *testing.T) {
	cfg := Config{LogLevel: "loud", LogFormat: "text"}
	if _, err := cfg.Logger(); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
