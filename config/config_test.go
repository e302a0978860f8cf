package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":5000" {
		t.Fatalf("expected default addr :5000, got %q", cfg.Addr)
	}
	if cfg.Store != StoreMemory {
		t.Fatalf("expected memory store, got %q", cfg.Store)
	}
	if cfg.DefaultDeadline() != 30*24*time.Hour {
		t.Fatalf("expected 30 day deadline, got %v", cfg.DefaultDeadline())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GIFTS_STORE", "sqlite")
	t.Setenv("GIFTS_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreSQLite {
		t.Fatalf("expected sqlite store, got %q", cfg.Store)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad int", "GIFTS_EVENT_BUFFER", "lots", "parse env:"},
		{"unknown store", "GIFTS_STORE", "mongo", "unknown store"},
		{"zero buffer", "GIFTS_EVENT_BUFFER", "0", "event buffer"},
		{"negative deadline", "GIFTS_DEFAULT_DEADLINE_DAYS", "-1", "deadline days"},
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
