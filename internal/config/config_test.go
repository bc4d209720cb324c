package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
agent:
  server: https://control.example.com
  data_dir: /var/lib/globalping/agent
  labels: ["city=Atlanta","asn=7018"]
tools:
  mtr_timeout: 20s
dns:
  default_resolver: 1.1.1.1
http:
  body_cap_bytes: 4096
`

func TestLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")

	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(ctx, path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Agent.Server != "https://control.example.com" {
		t.Fatalf("unexpected server: %s", cfg.Agent.Server)
	}
	if cfg.Tools.MTRTimeout != 20*time.Second {
		t.Fatalf("unexpected mtr timeout: %s", cfg.Tools.MTRTimeout)
	}
	if cfg.Tools.DigPath != "dig" {
		t.Fatalf("expected default dig path, got %q", cfg.Tools.DigPath)
	}
	if cfg.HTTP.BodyCapBytes != 4096 {
		t.Fatalf("unexpected http body cap: %d", cfg.HTTP.BodyCapBytes)
	}
	if cfg.DNS.ASNZone != DefaultASNZone {
		t.Fatalf("expected default asn zone, got %q", cfg.DNS.ASNZone)
	}
}

func TestLoadFromEnv(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")

	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(envConfigPath, path)

	cfg, err := LoadFromEnv(ctx)
	if err != nil {
		t.Fatalf("LoadFromEnv returned error: %v", err)
	}

	if cfg.Agent.DataDir != "/var/lib/globalping/agent" {
		t.Fatalf("unexpected data dir: %s", cfg.Agent.DataDir)
	}
}

func TestWithDefaultsRespectsNodeEnv(t *testing.T) {
	t.Setenv("NODE_ENV", "development")
	cfg := Config{}.WithDefaults()
	if !cfg.Tools.MTRSlowInterval {
		t.Fatalf("expected NODE_ENV=development to set MTRSlowInterval")
	}
	if cfg.Tools.MTRTimeout != 15*time.Second {
		t.Fatalf("expected mtr timeout to keep its own default, got %s", cfg.Tools.MTRTimeout)
	}
}
