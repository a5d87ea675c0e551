package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromYAMLDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("auth:\n  jwt_secret: s3cret\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:3001" {
		t.Fatalf("default addr missing: %q", cfg.Server.Addr)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("default base path missing: %q", cfg.Server.BasePath)
	}
	if cfg.Auth.TokenTTLMinutes != 30 {
		t.Fatalf("default ttl missing: %d", cfg.Auth.TokenTTLMinutes)
	}
}

func TestFromYAMLRejectsBadYAML(t *testing.T) {
	if _, err := FromYAML([]byte("server: [not a map")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFromYAMLRejectsNegativeTTL(t *testing.T) {
	if _, err := FromYAML([]byte("auth:\n  token_ttl_minutes: -5\n")); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config, got %+v", cfg)
	}

	data := "server:\n  addr: 0.0.0.0:9000\nnats:\n  url: nats://127.0.0.1:4222\nallowed_origins:\n  - https://home.example\n"
	if err := os.WriteFile(filepath.Join(dir, "hearth.yml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("addr not loaded: %q", cfg.Server.Addr)
	}
	if cfg.NATS.URL != "nats://127.0.0.1:4222" {
		t.Fatalf("nats url not loaded: %q", cfg.NATS.URL)
	}
	if len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("origins not loaded: %v", cfg.AllowedOrigins)
	}
}
