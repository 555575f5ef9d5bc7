package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Session.TTL != 20*time.Minute {
		t.Fatalf("expected default TTL 20m, got %s", cfg.Session.TTL)
	}
	if cfg.Power.URL != "" {
		t.Fatalf("expected no power URL by default, got %q", cfg.Power.URL)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected info level, got %q", cfg.Logging.Level)
	}
	if cfg.Telegram.Timeout != 60 {
		t.Fatalf("expected telegram timeout 60, got %d", cfg.Telegram.Timeout)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CALC_SERVER_ADDR", ":9090")
	t.Setenv("CALC_SESSION_TTL", "90s")
	t.Setenv("CALC_SESSION_CREATE_RATE", "2.5")
	t.Setenv("CALC_STORAGE_DIR", "/tmp/calc")
	t.Setenv("CALC_POWER_URL", "http://localhost:8080")
	t.Setenv("CALC_POWER_TIMEOUT", "250ms")
	t.Setenv("CALC_TELEGRAM_TOKEN", "secret")
	t.Setenv("CALC_LOGGING_DEV", "true")
	t.Setenv("CALC_TELEMETRY_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.Server.Addr)
	}
	if cfg.Session.TTL != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.Session.TTL)
	}
	if cfg.Session.CreateRate != 2.5 || cfg.Session.CreateBurst != 10 {
		t.Fatalf("unexpected create limit %v/%d", cfg.Session.CreateRate, cfg.Session.CreateBurst)
	}
	if cfg.Storage.Dir != "/tmp/calc" {
		t.Fatalf("expected storage dir, got %q", cfg.Storage.Dir)
	}
	if cfg.Power.URL != "http://localhost:8080" || cfg.Power.Timeout != 250*time.Millisecond {
		t.Fatalf("unexpected power config %+v", cfg.Power)
	}
	if cfg.Telegram.Token != "secret" {
		t.Fatalf("expected telegram token, got %q", cfg.Telegram.Token)
	}
	if !cfg.Logging.Development || !cfg.Telemetry.Enabled {
		t.Fatalf("expected dev logging and telemetry, got %+v %+v", cfg.Logging, cfg.Telemetry)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string][2]string{
		"unparsable duration": {"CALC_SESSION_TTL", "soon"},
		"zero ttl":            {"CALC_SESSION_TTL", "0s"},
		"negative cleanup":    {"CALC_SESSION_CLEANUP_INTERVAL", "-1m"},
		"negative rate":       {"CALC_SESSION_CREATE_RATE", "-2"},
	}

	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CALC_SERVER_ADDR=:7070\n"), 0o600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}
	t.Setenv("CALC_SERVER_ADDR", "")
	os.Unsetenv("CALC_SERVER_ADDR")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("expected addr from env file, got %q", cfg.Server.Addr)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CALC_LOGGING_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}
	t.Setenv("CALC_LOGGING_LEVEL", "warn")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("CALC_LOGGING_LEVEL"); got != "warn" {
		t.Fatalf("expected process value to win, got %q", got)
	}
}

func TestParseFlagsHelpListsVariables(t *testing.T) {
	var out strings.Builder

	help, err := ParseFlags("calc", []string{"-h"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !help {
		t.Fatal("expected -h to ask for exit")
	}
	for _, name := range []string{"CALC_SERVER_ADDR", "CALC_SESSION_TTL", "CALC_POWER_URL"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("expected usage to list %s, got:\n%s", name, out.String())
		}
	}
}

func TestParseFlagsRejectsUnknownInput(t *testing.T) {
	var out strings.Builder

	if help, err := ParseFlags("calc", nil, &out); err != nil || help {
		t.Fatalf("expected no flags to pass, got help=%v err=%v", help, err)
	}
	if _, err := ParseFlags("calc", []string{"-port", "9"}, &out); err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if _, err := ParseFlags("calc", []string{"serve"}, &out); err == nil {
		t.Fatal("expected error for stray argument")
	}
}
