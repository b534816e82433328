package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Helper to clear all config-related env vars
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"SPARKSHELL_PORT",
		"SPARKSHELL_UPSTREAM",
		"SPARKSHELL_READ_TIMEOUT",
		"SPARKSHELL_WRITE_TIMEOUT",
		"SPARKSHELL_SHUTDOWN_TIMEOUT",
		"SPARKSHELL_API_BASE_URL",
		"SPARKSHELL_API_TIMEOUT",
		"SPARKSHELL_DB_PATH",
		"SPARKSHELL_CACHE_GENERATION",
		"SPARKSHELL_API_CACHE_TTL",
		"SPARKSHELL_JANITOR_INTERVAL",
		"SPARKSHELL_BACKUP_ENDPOINT",
		"SPARKSHELL_BACKUP_BUCKET",
		"SPARKSHELL_BACKUP_ACCESS_KEY",
		"SPARKSHELL_BACKUP_SECRET_KEY",
		"SPARKSHELL_BACKUP_INTERVAL",
		"SPARKSHELL_VAPID_SUBJECT",
		"SPARKSHELL_VAPID_PUBLIC_KEY",
		"SPARKSHELL_VAPID_PRIVATE_KEY",
		"SPARKSHELL_LOG_LEVEL",
		"SPARKSHELL_LOG_FORMAT",
		"SPARKSHELL_CONFIG_PATH",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("SPARKSHELL_CONFIG_PATH", filepath.Join(t.TempDir(), "nonexistent.yaml"))
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Gateway.Port != 8099 {
		t.Errorf("default port = %d, want 8099", cfg.Gateway.Port)
	}
	if time.Duration(cfg.API.Timeout) != 10*time.Second {
		t.Errorf("default API timeout = %v, want 10s", time.Duration(cfg.API.Timeout))
	}
	if time.Duration(cfg.Cache.APITTL) != 10*time.Minute {
		t.Errorf("default API cache TTL = %v, want 10m", time.Duration(cfg.Cache.APITTL))
	}
	if cfg.Cache.Generation != "spark-v1" {
		t.Errorf("default generation = %q, want spark-v1", cfg.Cache.Generation)
	}
	if len(cfg.Cache.Precache) == 0 || cfg.Cache.Precache[0] != "/" {
		t.Errorf("default precache manifest = %v, want root document first", cfg.Cache.Precache)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "sparkshell.yaml")
	content := `
gateway:
  port: 9091
api:
  base_url: "https://api.spark.example/api/v1"
  timeout: "5s"
cache:
  generation: "spark-v7"
  api_ttl: "2m"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Gateway.Port != 9091 {
		t.Errorf("port = %d, want 9091", cfg.Gateway.Port)
	}
	if cfg.API.BaseURL != "https://api.spark.example/api/v1" {
		t.Errorf("base URL = %q", cfg.API.BaseURL)
	}
	if time.Duration(cfg.API.Timeout) != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", time.Duration(cfg.API.Timeout))
	}
	if cfg.Cache.Generation != "spark-v7" {
		t.Errorf("generation = %q, want spark-v7", cfg.Cache.Generation)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "sparkshell.yaml")
	if err := os.WriteFile(path, []byte("gateway:\n  port: 9091\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	os.Setenv("SPARKSHELL_PORT", "9999")
	os.Setenv("SPARKSHELL_CACHE_GENERATION", "spark-v9")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Gateway.Port != 9999 {
		t.Errorf("port = %d, want env override 9999", cfg.Gateway.Port)
	}
	if cfg.Cache.Generation != "spark-v9" {
		t.Errorf("generation = %q, want env override spark-v9", cfg.Cache.Generation)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "sparkshell.yaml")
	if err := os.WriteFile(path, []byte("api:\n  timeout: \"not-a-duration\"\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want invalid duration", err)
	}
}

func TestValidate_BackupRequiresEndpoint(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	cfg := newDefaults()
	cfg.Backup.Bucket = "spark-state"

	err := cfg.validate()
	if err == nil {
		t.Fatal("expected error when bucket set without endpoint")
	}
	if !strings.Contains(err.Error(), "backup.endpoint") {
		t.Errorf("error = %v, want backup.endpoint complaint", err)
	}
}
