// Package config loads process-level settings for the swarmsim CLI from an
// optional config file, a .env file and SWARMSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// SWARMSIM_LOG_LEVEL or SWARMSIM_RUNNER_PARALLELISM.
const EnvPrefix = "SWARMSIM"

// Config is the process configuration. Scenario content lives in scenario
// files; this only covers how runs are executed and observed.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Results ResultsConfig `mapstructure:"results"`
	Runner  RunnerConfig  `mapstructure:"runner"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Addr serves /metrics when non-empty, e.g. ":9090".
	Addr string `mapstructure:"addr"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type ResultsConfig struct {
	// Path of the SQLite run-summary database. Empty disables recording.
	Path string `mapstructure:"path"`
}

type RunnerConfig struct {
	Parallelism int           `mapstructure:"parallelism"`
	RunTimeout  time.Duration `mapstructure:"run_timeout"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{ServiceName: "swarmsim", Exporter: "stdout", SampleRatio: 1},
		Runner:  RunnerConfig{Parallelism: 1},
	}
}

// SetDefaults registers Default() with v so that environment variables for
// unset keys are still picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	v.SetDefault("results.path", d.Results.Path)
	v.SetDefault("runner.parallelism", d.Runner.Parallelism)
	v.SetDefault("runner.run_timeout", d.Runner.RunTimeout)
}

// Load reads configuration into v and decodes it. path may be empty, in
// which case swarmsim.{yaml,json,toml} is searched in the working directory
// and $HOME/.swarmsim; a missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("swarmsim")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.swarmsim")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment without overriding variables already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "stdout", "otlp", "otlpgrpc":
	default:
		return fmt.Errorf("config: tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("config: tracing.sample_ratio must be in [0, 1], got %g", c.Tracing.SampleRatio)
	}
	if c.Runner.Parallelism < 1 {
		return fmt.Errorf("config: runner.parallelism must be >= 1, got %d", c.Runner.Parallelism)
	}
	if c.Runner.RunTimeout < 0 {
		return fmt.Errorf("config: runner.run_timeout must be >= 0, got %s", c.Runner.RunTimeout)
	}
	return nil
}
