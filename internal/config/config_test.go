package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarmsim.yaml")
	body := []byte(`
log:
  level: debug
  format: json
results:
  path: runs.db
runner:
  parallelism: 4
  run_timeout: 30s
tracing:
  enabled: true
  exporter: otlp
  endpoint: collector:4317
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SWARMSIM_RUNNER_PARALLELISM", "8")
	t.Setenv("SWARMSIM_METRICS_ADDR", ":9100")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Runner.Parallelism != 8 {
		t.Errorf("parallelism = %d, want env override 8", cfg.Runner.Parallelism)
	}
	if cfg.Runner.RunTimeout != 30*time.Second {
		t.Errorf("run timeout = %s, want 30s", cfg.Runner.RunTimeout)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("metrics addr = %q, want :9100", cfg.Metrics.Addr)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "otlp" || cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.ServiceName != "swarmsim" || cfg.Tracing.SampleRatio != 1 {
		t.Errorf("tracing defaults lost: %+v", cfg.Tracing)
	}
	if cfg.Results.Path != "runs.db" {
		t.Errorf("results path = %q", cfg.Results.Path)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"log format":   func(c *Config) { c.Log.Format = "xml" },
		"exporter":     func(c *Config) { c.Tracing.Exporter = "zipkin" },
		"sample ratio": func(c *Config) { c.Tracing.SampleRatio = 1.5 },
		"parallelism":  func(c *Config) { c.Runner.Parallelism = 0 },
		"timeout":      func(c *Config) { c.Runner.RunTimeout = -time.Second },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SWARMSIM_DOTENV_PROBE=from-file\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SWARMSIM_DOTENV_PROBE", "")
	os.Unsetenv("SWARMSIM_DOTENV_PROBE")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("SWARMSIM_DOTENV_PROBE"); got != "from-file" {
		t.Fatalf("env = %q, want from-file", got)
	}
}
