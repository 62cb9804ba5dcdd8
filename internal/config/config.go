// Package config defines the pipeline configuration structure and loader.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Source       SourceConfig    `yaml:"source"`
	Staging      PathConfig      `yaml:"staging"`
	Output       PathConfig      `yaml:"output"`
	Destinations []Destination   `yaml:"destinations"`
	Generator    GeneratorConfig `yaml:"generator"`
	Daemon       DaemonConfig    `yaml:"daemon,omitempty"`
	History      HistoryConfig   `yaml:"history,omitempty"`
	Notify       NotifyConfig    `yaml:"notify,omitempty"`
}

// SourceConfig identifies where exported data files are retrieved from.
// Exactly one of Path or Git may be set.
type SourceConfig struct {
	Path string     `yaml:"path,omitempty"`
	Git  *GitSource `yaml:"git,omitempty"`
}

// GitSource describes a git repository holding the exports.
type GitSource struct {
	URL    string `yaml:"url"`
	Branch string `yaml:"branch,omitempty"`
}

// PathConfig is a single configured directory.
type PathConfig struct {
	Path string `yaml:"path"`
}

// Destination is a named publish location receiving a copy of the site bundle.
type Destination struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Duration wraps time.Duration so YAML values can be written in the usual
// "10m"/"1h" form.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }
func (d Duration) String() string     { return time.Duration(d).String() }

// UnmarshalYAML accepts either a duration string or an integer nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// GeneratorConfig holds the external site generator invocation parameters.
type GeneratorConfig struct {
	Command     string   `yaml:"command"`
	ProjectName string   `yaml:"project_name"`
	LogoPath    string   `yaml:"logo_path,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
}

// DaemonConfig configures continuous mode.
type DaemonConfig struct {
	Interval    Duration `yaml:"interval,omitempty"`
	WatchSource bool     `yaml:"watch_source,omitempty"`
	Listen      string   `yaml:"listen,omitempty"`
}

// HistoryConfig configures the run history store. Empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// NotifyConfig configures run-completed event publishing.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Load loads configuration from the specified file, expanding ${VAR}
// references from the environment (optionally seeded from a .env file).
func Load(configPath string) (*Config, error) {
	// Best effort: a missing .env is the normal case.
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Staging.Path == "" {
		c.Staging.Path = "./work/exports"
	}
	if c.Output.Path == "" {
		c.Output.Path = "./work/site"
	}
	if c.Generator.Command == "" {
		c.Generator.Command = "generate-site"
	}
	if c.Generator.ProjectName == "" {
		c.Generator.ProjectName = "Requirements"
	}
	if c.Generator.Timeout == 0 {
		c.Generator.Timeout = Duration(10 * time.Minute)
	}
	if c.Daemon.Interval == 0 {
		c.Daemon.Interval = Duration(time.Hour)
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = ":9360"
	}
	if c.Source.Git != nil && c.Source.Git.Branch == "" {
		c.Source.Git.Branch = "main"
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = "reqsite.runs"
	}
}

// Validate checks structural consistency of the loaded configuration.
func (c *Config) Validate() error {
	if c.Source.Path == "" && c.Source.Git == nil {
		return fmt.Errorf("source: either path or git must be configured")
	}
	if c.Source.Path != "" && c.Source.Git != nil {
		return fmt.Errorf("source: path and git are mutually exclusive")
	}
	if c.Source.Git != nil && c.Source.Git.URL == "" {
		return fmt.Errorf("source.git: url is required")
	}
	seen := make(map[string]struct{}, len(c.Destinations))
	for i, d := range c.Destinations {
		if d.Path == "" {
			return fmt.Errorf("destinations[%d]: path is required", i)
		}
		name := d.DisplayName()
		if _, dup := seen[name]; dup {
			return fmt.Errorf("destinations: duplicate name %q", name)
		}
		seen[name] = struct{}{}
	}
	if c.Notify.Enabled && c.Notify.NATSURL == "" {
		return fmt.Errorf("notify: nats_url is required when enabled")
	}
	return nil
}

// DisplayName returns the destination name, falling back to its path.
func (d Destination) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Path
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Source:  SourceConfig{Path: "/mnt/doors/exports"},
		Staging: PathConfig{Path: "./work/exports"},
		Output:  PathConfig{Path: "./work/site"},
		Destinations: []Destination{
			{Name: "engineering", Path: "/mnt/shares/eng/reqsite"},
			{Name: "quality", Path: "/mnt/shares/qa/reqsite"},
		},
		Generator: GeneratorConfig{
			Command:     "generate-site",
			ProjectName: "My Project",
			LogoPath:    "./assets/logo.png",
			Timeout:     Duration(10 * time.Minute),
		},
		Daemon: DaemonConfig{
			Interval:    Duration(time.Hour),
			WatchSource: true,
			Listen:      ":9360",
		},
		History: HistoryConfig{Path: "./work/reqsite.db"},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
