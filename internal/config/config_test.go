package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("expected secret from env, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.CacheTTL() != 30*time.Second {
		t.Errorf("expected default cache TTL 30s, got %v", cfg.CacheTTL())
	}
	if cfg.TokenTTL() != time.Hour {
		t.Errorf("expected default token TTL 1h, got %v", cfg.TokenTTL())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %q", cfg.Logging.Level)
	}
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PORT", "9999")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: "3000"
auth:
  jwt_secret: file-secret
  token_ttl_min: 15
logging:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("env should override file port, got %q", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Errorf("expected file secret, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.TokenTTL() != 15*time.Minute {
		t.Errorf("expected 15m token TTL, got %v", cfg.TokenTTL())
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestLoad_MissingSecretFails(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(""); err == nil {
		t.Error("expected error when jwt secret is missing")
	}
}

func TestValidate_RedisRequiresDatabase(t *testing.T) {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Auth.JWTSecret = "s"
	cfg.Redis.URL = "redis://localhost:6379"

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for redis without database")
	}
}
