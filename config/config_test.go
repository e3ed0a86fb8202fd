package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("GEOCODER_RATE", "-1")
	t.Setenv("PUBLIC_URL", "https://pinmap.example/")
	t.Setenv("WORKSPACE_IDLE_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected :9090, got %q", cfg.Server.Addr)
	}
	if cfg.Auth.SessionTTL != 90*time.Minute {
		t.Errorf("expected 90m session TTL, got %v", cfg.Auth.SessionTTL)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("expected redis db 3, got %d", cfg.Redis.DB)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Geocoder.Rate != 1 {
		t.Errorf("expected default rate for invalid value, got %v", cfg.Geocoder.Rate)
	}
	if cfg.Server.PublicURL != "https://pinmap.example" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Server.PublicURL)
	}
	if cfg.WorkspaceIdleTTL != 2*time.Hour {
		t.Errorf("expected default idle TTL, got %v", cfg.WorkspaceIdleTTL)
	}
	if cfg.Mongo.Database != "pinmap" {
		t.Errorf("expected default database, got %q", cfg.Mongo.Database)
	}
}

func TestLoadCategories(t *testing.T) {
	categories, err := LoadCategories(filepath.Join("..", "data", "categories.yaml"))
	if err != nil {
		t.Fatalf("LoadCategories: %v", err)
	}
	if len(categories) != 6 || categories[0].Key != "social" || categories[0].Color == "" {
		t.Errorf("unexpected catalog %+v", categories)
	}

	missing, err := LoadCategories(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil || missing != nil {
		t.Errorf("expected empty catalog for a missing file, got %v, %v", missing, err)
	}
}

func TestLoadCategoriesRejectsBadCatalogs(t *testing.T) {
	tests := map[string]string{
		"duplicate": "categories:\n  - key: a\n  - key: a\n",
		"no key":    "categories:\n  - label: Nameless\n",
		"not yaml":  "categories: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "categories.yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadCategories(path); err == nil {
				t.Errorf("expected error for %s catalog", name)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Errorf("expected debug level enabled")
	}
}
