package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{"llm":{"routing":{"planning":"planning","chat":"chat"}}}`)
	cfg := LoadConfig(path)

	if cfg.Agent.MaxToolCalls != 5 {
		t.Fatalf("default max_tool_calls = %d", cfg.Agent.MaxToolCalls)
	}
	if cfg.Vector.TopK != 6 {
		t.Fatalf("default vector top_k = %d", cfg.Vector.TopK)
	}
	if cfg.WebSearch.Provider != "openai" {
		t.Fatalf("default web search provider = %q", cfg.WebSearch.Provider)
	}
	if cfg.Session.Store != "inmemory" {
		t.Fatalf("default session store = %q", cfg.Session.Store)
	}
	if cfg.Resync.CronSpec != "0 3 * * *" {
		t.Fatalf("default resync cron = %q", cfg.Resync.CronSpec)
	}
}

func TestLoadConfigPanicsOnMissingFile(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for missing config file")
		}
	}()
	LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
}

func TestLoadConfigPanicsOnUnconfiguredRedis(t *testing.T) {
	path := writeConfig(t, `{"session":{"store":"redis"}}`)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic when redis store has no host")
		}
	}()
	LoadConfig(path)
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "localhost", Port: "6379"}
	if r.Addr() != "localhost:6379" {
		t.Fatalf("Addr() = %q", r.Addr())
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := (RedisConfig{}).Validate(); err == nil {
		t.Fatalf("empty redis config should not validate")
	}
}
