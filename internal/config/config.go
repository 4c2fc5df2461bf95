// Package config loads the user's cifail configuration. Values come from a
// TOML file and are overridden by environment variables; the result is an
// explicit Config handed to every component that needs it.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed templates/config.tmpl
var configTemplateText string

// ErrMissingToken is returned when no Buildkite API token is configured.
var ErrMissingToken = errors.New("buildkite API token is not configured")

const (
	defaultTimeoutSeconds = 30
	defaultParallelism    = 4
)

// Environment variables that override file values.
const (
	EnvToken        = "BUILDKITE_API_TOKEN"
	EnvOrg          = "BUILDKITE_ORG"
	EnvPipeline     = "BUILDKITE_PIPELINE"
	EnvMainPipeline = "BUILDKITE_MAIN_PIPELINE"
	EnvConfigPath   = "CIFAIL_CONFIG"
)

// Config is the complete configuration for one invocation.
type Config struct {
	Buildkite BuildkiteConfig `toml:"buildkite"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	Fetch     FetchConfig     `toml:"fetch"`
	Log       LogConfig       `toml:"log"`
}

// BuildkiteConfig holds credentials and pipeline defaults.
type BuildkiteConfig struct {
	Token string `toml:"token"`
	Org   string `toml:"org"`
	// Pipeline is the default slug for bare build numbers.
	Pipeline string `toml:"pipeline"`
	// MainPipeline is a pipeline whose builds only trigger other pipelines.
	MainPipeline string `toml:"main_pipeline"`
}

// AnalysisConfig controls the context window around a failure.
type AnalysisConfig struct {
	ContextBefore *int `toml:"context_before"`
	ContextAfter  *int `toml:"context_after"`
}

// GetContextBefore returns the configured lines before the failure, default 3.
func (a *AnalysisConfig) GetContextBefore() int {
	if a.ContextBefore == nil || *a.ContextBefore < 0 {
		return 3
	}
	return *a.ContextBefore
}

// GetContextAfter returns the configured lines after the failure, default 1.
func (a *AnalysisConfig) GetContextAfter() int {
	if a.ContextAfter == nil || *a.ContextAfter < 0 {
		return 1
	}
	return *a.ContextAfter
}

// FetchConfig controls how collaborators are invoked.
type FetchConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	Parallelism    int `toml:"parallelism"`
}

// Timeout returns the per-command timeout. Defaults to 30 seconds.
func (f *FetchConfig) Timeout() time.Duration {
	if f.TimeoutSeconds <= 0 {
		return defaultTimeoutSeconds * time.Second
	}
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// GetParallelism returns the maximum concurrent log fetches. Defaults to 4.
func (f *FetchConfig) GetParallelism() int {
	if f.Parallelism <= 0 {
		return defaultParallelism
	}
	return f.Parallelism
}

// LogConfig controls the debug log.
type LogConfig struct {
	Debug bool   `toml:"debug"`
	Path  string `toml:"path"`
}

// Env looks up an environment variable.
type Env func(key string) (string, bool)

// OSEnv reads the process environment.
func OSEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// DefaultPath returns the config file location: $CIFAIL_CONFIG, else
// $XDG_CONFIG_HOME/cifail/config.toml, else ~/.config/cifail/config.toml.
func DefaultPath(env Env) string {
	if v, ok := env(EnvConfigPath); ok && v != "" {
		return v
	}
	if v, ok := env("XDG_CONFIG_HOME"); ok && v != "" {
		return filepath.Join(v, "cifail", "config.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cifail", "config.toml")
}

// Load reads path and applies environment overrides. A missing file yields
// a config built from the environment alone.
func Load(path string, env Env) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	if env != nil {
		cfg.applyEnv(env)
	}
	return &cfg, nil
}

func (c *Config) applyEnv(env Env) {
	override := func(key string, dst *string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	override(EnvToken, &c.Buildkite.Token)
	override(EnvOrg, &c.Buildkite.Org)
	override(EnvPipeline, &c.Buildkite.Pipeline)
	override(EnvMainPipeline, &c.Buildkite.MainPipeline)
}

// Validate checks what Buildkite operations require.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Buildkite.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// BuildkiteEnv returns environment entries that pass the configured
// credentials to the bk CLI.
func (c *Config) BuildkiteEnv() []string {
	var env []string
	if c.Buildkite.Token != "" {
		env = append(env, EnvToken+"="+c.Buildkite.Token)
	}
	if c.Buildkite.Org != "" {
		env = append(env, "BUILDKITE_ORGANIZATION_SLUG="+c.Buildkite.Org)
	}
	return env
}

// Save writes the documented config to path with 0600 permissions, creating
// parent directories as needed. The file is replaced atomically.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(c.GenerateDocumentedConfig()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// configTemplateData holds the data used to render the config template.
type configTemplateData struct {
	Token          string
	Org            string
	Pipeline       string
	MainPipeline   string
	ContextBefore  int
	ContextAfter   int
	TimeoutSeconds int
	Parallelism    int
	Debug          bool
	LogPath        string
}

// tomlString formats a string for TOML output with proper escaping.
func tomlString(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}

var configTemplate = template.Must(template.New("config").Funcs(template.FuncMap{
	"tomlString": tomlString,
}).Parse(configTemplateText))

// GenerateDocumentedConfig renders the config as commented TOML.
func (c *Config) GenerateDocumentedConfig() string {
	data := configTemplateData{
		Token:          c.Buildkite.Token,
		Org:            c.Buildkite.Org,
		Pipeline:       c.Buildkite.Pipeline,
		MainPipeline:   c.Buildkite.MainPipeline,
		ContextBefore:  c.Analysis.GetContextBefore(),
		ContextAfter:   c.Analysis.GetContextAfter(),
		TimeoutSeconds: int(c.Fetch.Timeout() / time.Second),
		Parallelism:    c.Fetch.GetParallelism(),
		Debug:          c.Log.Debug,
		LogPath:        c.Log.Path,
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, data); err != nil {
		var fallback bytes.Buffer
		_ = toml.NewEncoder(&fallback).Encode(c)
		return fallback.String()
	}
	return buf.String()
}
