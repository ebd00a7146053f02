package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.DataDir != "./data" {
		t.Errorf("Expected default data dir, got %s", cfg.DataDir)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("Expected 30s sync interval, got %s", cfg.SyncInterval)
	}
	if cfg.GraceWindow != 60*time.Second {
		t.Errorf("Expected 60s grace window, got %s", cfg.GraceWindow)
	}
	if cfg.DebounceWindow != 2*time.Second {
		t.Errorf("Expected 2s debounce, got %s", cfg.DebounceWindow)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("Expected 5 max attempts, got %d", cfg.MaxAttempts)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/feesync")
	t.Setenv("SYNC_INTERVAL_SEC", "120")
	t.Setenv("SYNC_MAX_ATTEMPTS", "3")

	cfg := Load()
	if cfg.DataDir != "/var/lib/feesync" {
		t.Errorf("Expected env data dir, got %s", cfg.DataDir)
	}
	if cfg.SyncInterval != 2*time.Minute {
		t.Errorf("Expected 2m sync interval, got %s", cfg.SyncInterval)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("Expected 3 max attempts, got %d", cfg.MaxAttempts)
	}
}

func TestMaxAttemptsIsClamped(t *testing.T) {
	t.Setenv("SYNC_MAX_ATTEMPTS", "100")
	if got := Load().MaxAttempts; got != MaxAttempts {
		t.Errorf("Expected clamp to %d, got %d", MaxAttempts, got)
	}

	t.Setenv("SYNC_MAX_ATTEMPTS", "0")
	if got := Load().MaxAttempts; got != MinAttempts {
		t.Errorf("Expected clamp to %d, got %d", MinAttempts, got)
	}
}

func TestInvalidIntFallsBack(t *testing.T) {
	t.Setenv("SYNC_INTERVAL_SEC", "soon")
	if got := Load().SyncInterval; got != 30*time.Second {
		t.Errorf("Expected fallback interval, got %s", got)
	}
}
