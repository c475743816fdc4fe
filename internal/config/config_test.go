package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
evaluator:
  profiles_path: ./testdata/profiles.json
  poll_interval: 30s
  default_interval: 4h
  default_exchange: bybit
  symbol_groups:
    majors: [BTCUSDT, ETHUSDT]

fetch:
  base_url: http://localhost:9000
  timeout: 5s
  ok_ttl: 20s

dispatch:
  mode: telegram
  bot_token: "test_token"
  chat_id: "12345"

storage:
  backend: sqlite
  db_path: ./data/test.db

logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Evaluator.PollInterval != 30*time.Second {
		t.Errorf("poll_interval = %v, want 30s", cfg.Evaluator.PollInterval)
	}
	if cfg.Evaluator.DefaultExchange != "bybit" {
		t.Errorf("default_exchange = %q, want bybit", cfg.Evaluator.DefaultExchange)
	}
	if got := cfg.Evaluator.SymbolGroups["majors"]; len(got) != 2 {
		t.Errorf("symbol_groups.majors = %v, want 2 entries", got)
	}
	if cfg.Fetch.OKTTL != 20*time.Second {
		t.Errorf("ok_ttl = %v, want 20s", cfg.Fetch.OKTTL)
	}
	// Defaults fill the unspecified fields.
	if cfg.Fetch.MaxConcurrent != 8 {
		t.Errorf("max_concurrent default = %d, want 8", cfg.Fetch.MaxConcurrent)
	}
	if cfg.Storage.HistoryCap != 5000 {
		t.Errorf("history_cap default = %d, want 5000", cfg.Storage.HistoryCap)
	}
	if cfg.Dispatch.Mode != "telegram" {
		t.Errorf("dispatch mode = %q, want telegram", cfg.Dispatch.Mode)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			"telegram without token",
			"dispatch:\n  mode: telegram\n  chat_id: \"123\"\n",
		},
		{
			"bad dispatch mode",
			"dispatch:\n  mode: carrier_pigeon\n",
		},
		{
			"bad storage backend",
			"storage:\n  backend: etcd\n",
		},
		{
			"bad request mode",
			"evaluator:\n  request_mode: sometime\n",
		},
		{
			"as_of without timestamp",
			"evaluator:\n  request_mode: as_of\n",
		},
		{
			"sub-second poll interval",
			"evaluator:\n  poll_interval: 200ms\n",
		},
		{
			"bad log level",
			"logging:\n  level: verbose\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
