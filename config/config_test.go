package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sample = `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
logging:
  env: prod
  backend: zap
storage:
  driver: sqlite
  sqlite:
    path: /tmp/spaces.db
auth:
  secret: s3cret
  ttl: 1h
agent:
  backendURL: http://localhost:8080
  mediaURL: ws://localhost:8080
  spaceID: sp1
  userID: u1
  syncInterval: 500ms
  cameras: [front, back]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.TTL != time.Hour || cfg.Agent.SyncInterval != 500*time.Millisecond {
		t.Fatalf("durations: ttl=%s sync=%s", cfg.Auth.TTL, cfg.Agent.SyncInterval)
	}
	if cfg.Auth.Issuer != "spaces" || cfg.Agent.RequestTimeout != 10*time.Second || cfg.Logging.Level != "info" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Agent.Cameras) != 2 {
		t.Fatalf("cameras: %v", cfg.Agent.Cameras)
	}
	if err := cfg.ValidateService(); err != nil {
		t.Fatalf("validate service: %v", err)
	}
	if cfg.Logging.Service != "space-service" {
		t.Fatalf("service name default: %q", cfg.Logging.Service)
	}
	if err := cfg.ValidateAgent(); err != nil {
		t.Fatalf("validate agent: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPACES_HTTP_ADDR", ":18080")
	t.Setenv("SPACES_STORAGE_DRIVER", "postgres")
	t.Setenv("SPACES_STORAGE_POSTGRES_DSN", "postgres://localhost/spaces")
	t.Setenv("SPACES_AGENT_CAMERAS", "a,b,c")

	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":18080" || cfg.Storage.Driver != "postgres" || cfg.Storage.Postgres.DSN == "" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.Agent.Cameras) != 3 {
		t.Fatalf("cameras from env: %v", cfg.Agent.Cameras)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestValidateService(t *testing.T) {
	tests := []struct {
		name string
		mod  func(c *Config)
	}{
		{"no http", func(c *Config) { c.HTTP.Addr = "" }},
		{"no secret", func(c *Config) { c.Auth.Secret = "" }},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sample))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tc.mod(cfg)
			if err := cfg.ValidateService(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
