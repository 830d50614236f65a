// Package config provides configuration management for talkback.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"talkback/internal/filter"
)

const (
	// DefaultPort is the HTTP control surface port.
	DefaultPort = 38472
	// DefaultRescanSeconds is the fallback rescan interval for watchers.
	DefaultRescanSeconds = 2
	// DefaultRetentionDays bounds the age of terminal queue records kept by
	// the retention sweep.
	DefaultRetentionDays = 30
)

// SynthesisConfig selects and parameterizes the speech provider for a
// profile. Exactly one of Command or URL is set.
type SynthesisConfig struct {
	// Provider is "command" or "http".
	Provider string `yaml:"provider"`
	// Voice names the voice passed to the provider.
	Voice string `yaml:"voice"`
	// Command is the local TTS invocation, with {text}, {voice} and
	// {output} placeholders ("command" provider).
	Command string `yaml:"command,omitempty"`
	// URL is the synthesis endpoint ("http" provider).
	URL string `yaml:"url,omitempty"`
	// AuthHeader is sent as the Authorization header when set.
	AuthHeader string `yaml:"authHeader,omitempty"`
	// Extension is the audio file extension for cached artifacts
	// (default ".wav").
	Extension string `yaml:"extension,omitempty"`
}

// FiltersConfig parameterizes the profile's filter chain.
type FiltersConfig struct {
	Disabled       []string          `yaml:"disabled,omitempty"`
	URLToken       string            `yaml:"urlToken,omitempty"`
	SpeakParentDir bool              `yaml:"speakParentDir,omitempty"`
	Lexicon        map[string]string `yaml:"lexicon,omitempty"`
	MinLength      int               `yaml:"minLength,omitempty"`
	MaxLength      int               `yaml:"maxLength,omitempty"`
	Rules          []filter.Rule     `yaml:"rules,omitempty"`
}

// Profile is one watched conversational source.
type Profile struct {
	ID       string   `yaml:"id"`
	Parser   string   `yaml:"parser"`
	Patterns []string `yaml:"patterns"`
	Excludes []string `yaml:"excludes,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled   *bool           `yaml:"enabled,omitempty"`
	Filters   FiltersConfig   `yaml:"filters,omitempty"`
	Synthesis SynthesisConfig `yaml:"synthesis,omitempty"`
}

// IsEnabled resolves the optional Enabled flag.
func (p *Profile) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Config is the full talkback configuration.
type Config struct {
	Port          int    `yaml:"port"`
	DataDir       string `yaml:"dataDir,omitempty"`
	RescanSeconds int    `yaml:"rescanSeconds,omitempty"`
	RetentionDays int    `yaml:"retentionDays,omitempty"`
	// PlayerCommand overrides audio player autodetection, with an {input}
	// placeholder.
	PlayerCommand string    `yaml:"playerCommand,omitempty"`
	Profiles      []Profile `yaml:"profiles"`
}

// Default returns the built-in configuration: one profile per supported
// assistant, watching its conventional session directory.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Port:          DefaultPort,
		RescanSeconds: DefaultRescanSeconds,
		RetentionDays: DefaultRetentionDays,
		Profiles: []Profile{
			{
				ID:       "claude",
				Parser:   "claude",
				Patterns: []string{filepath.Join(home, ".claude", "projects", "**", "*.jsonl")},
				Synthesis: SynthesisConfig{
					Provider:  "command",
					Voice:     "Samantha",
					Command:   "say -v {voice} -o {output} --data-format=LEF32@22050 {text}",
					Extension: ".wav",
				},
			},
			{
				ID:       "codex",
				Parser:   "codex",
				Patterns: []string{filepath.Join(home, ".codex", "sessions", "**", "*.jsonl")},
				Synthesis: SynthesisConfig{
					Provider:  "command",
					Voice:     "Samantha",
					Command:   "say -v {voice} -o {output} --data-format=LEF32@22050 {text}",
					Extension: ".wav",
				},
			},
		},
	}
}

// DataDir returns the talkback state directory.
func DataDir() string {
	if dir := os.Getenv("TALKBACK_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".talkback"
	}
	return filepath.Join(home, ".talkback")
}

// ConfigPath returns the configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// DBPath returns the SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "talkback.db")
}

// CacheDir returns the audio artifact cache directory.
func CacheDir() string {
	return filepath.Join(DataDir(), "cache")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o750)
}

// EnsureConfig writes the default configuration file when none exists, so
// a fresh install has something to edit.
func EnsureConfig() error {
	path := ConfigPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// EnsureAll prepares the data directory, cache directory and config file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	if err := os.MkdirAll(CacheDir(), 0o750); err != nil {
		return fmt.Errorf("ensure cache dir: %w", err)
	}
	return EnsureConfig()
}

// Load reads the configuration file, applies defaults and environment
// overrides, and validates it. A missing file yields the defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ConfigPath())
	switch {
	case os.IsNotExist(err):
		// Defaults stand.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		loaded := &Config{}
		if err := yaml.Unmarshal(data, loaded); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		cfg = loaded
	}

	applyDefaults(cfg)
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.RescanSeconds <= 0 {
		cfg.RescanSeconds = DefaultRescanSeconds
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	for i := range cfg.Profiles {
		p := &cfg.Profiles[i]
		if p.Synthesis.Extension == "" {
			p.Synthesis.Extension = ".wav"
		}
		for j, pat := range p.Patterns {
			p.Patterns[j] = ExpandHome(pat)
		}
		for j, pat := range p.Excludes {
			p.Excludes[j] = ExpandHome(pat)
		}
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TALKBACK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Port = port
		}
	}
}

// Validate checks the structural invariants a later component cannot
// recover from: unique profile IDs, a parser name, at least one pattern.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Profiles))
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if p.ID == "" {
			return fmt.Errorf("config: profile %d has no id", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate profile id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Parser == "" {
			return fmt.Errorf("config: profile %q has no parser", p.ID)
		}
		if len(p.Patterns) == 0 {
			return fmt.Errorf("config: profile %q has no watch patterns", p.ID)
		}
		switch p.Synthesis.Provider {
		case "", "command", "http":
		default:
			return fmt.Errorf("config: profile %q has unknown synthesis provider %q", p.ID, p.Synthesis.Provider)
		}
		if p.Synthesis.Provider == "http" && p.Synthesis.URL == "" {
			return fmt.Errorf("config: profile %q uses http synthesis without a url", p.ID)
		}
	}
	return nil
}

// ExpandHome resolves a leading ~/ against the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
