package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"intervene/internal/domain"
	"intervene/internal/plan"
)

// Config models intervene.yml (or intervene.toml).
type Config struct {
	Planning struct {
		TimelineWeeks int `yaml:"timeline_weeks" toml:"timeline_weeks"`
		TasksPerWeek  int `yaml:"tasks_per_week" toml:"tasks_per_week"`
		BaseWeeks     struct {
			High   int `yaml:"high" toml:"high"`
			Medium int `yaml:"medium" toml:"medium"`
			Low    int `yaml:"low" toml:"low"`
		} `yaml:"base_weeks" toml:"base_weeks"`
	} `yaml:"planning" toml:"planning"`
	Events struct {
		NATSURL       string `yaml:"nats_url" toml:"nats_url"`
		SubjectPrefix string `yaml:"subject_prefix" toml:"subject_prefix"`
	} `yaml:"events" toml:"events"`
	Cache struct {
		RedisURL string `yaml:"redis_url" toml:"redis_url"`
		TTL      string `yaml:"ttl" toml:"ttl"`
	} `yaml:"cache" toml:"cache"`
	Export struct {
		S3 S3Config `yaml:"s3" toml:"s3"`
	} `yaml:"export" toml:"export"`
	Webhooks []WebhookConfig `yaml:"webhooks" toml:"webhooks"`
}

type S3Config struct {
	Bucket   string `yaml:"bucket" toml:"bucket"`
	Region   string `yaml:"region" toml:"region"`
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" toml:"url"`
	Events         []string `yaml:"events" toml:"events"`
	Secret         string   `yaml:"secret" toml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled" toml:"enabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	p := c.Planning
	if p.TimelineWeeks < 1 {
		return fmt.Errorf("config.planning.timeline_weeks must be at least 1")
	}
	if p.TasksPerWeek < 1 {
		return fmt.Errorf("config.planning.tasks_per_week must be at least 1")
	}
	b := p.BaseWeeks
	if b.Low < 0 || b.Medium < 0 || b.High < 0 {
		return fmt.Errorf("config.planning.base_weeks must not be negative")
	}
	if b.Low > b.Medium || b.Medium > b.High {
		return fmt.Errorf("config.planning.base_weeks must satisfy low <= medium <= high")
	}
	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("config.cache.ttl: %w", err)
		}
	}
	if c.Export.S3.Bucket != "" && c.Export.S3.Region == "" {
		return fmt.Errorf("config.export.s3.region is required when a bucket is set")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Policy converts the planning section into the scheduler's sizing rule.
func (c *Config) Policy() plan.Policy {
	return plan.Policy{
		BaseWeeks: map[domain.Complexity]int{
			domain.ComplexityHigh:   c.Planning.BaseWeeks.High,
			domain.ComplexityMedium: c.Planning.BaseWeeks.Medium,
			domain.ComplexityLow:    c.Planning.BaseWeeks.Low,
		},
		TasksPerWeek: c.Planning.TasksPerWeek,
	}
}

// CacheTTL is the parsed cache ttl, ten minutes when unset.
func (c *Config) CacheTTL() time.Duration {
	if c == nil {
		return 10 * time.Minute
	}
	if d, err := time.ParseDuration(c.Cache.TTL); err == nil && d > 0 {
		return d
	}
	return 10 * time.Minute
}

// Path returns the YAML config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "intervene.yml")
}

// TOMLPath returns the TOML config file path for a workspace.
func TOMLPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "intervene.toml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from the workspace, preferring YAML over TOML.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config %s not found; create one with iv config init", Path(workspace))
	}
	return cfg, nil
}

// LoadOptional returns nil,nil if no config file exists.
func LoadOptional(workspace string) (*Config, error) {
	for _, path := range []string{Path(workspace), TOMLPath(workspace)} {
		cfg, err := FromFile(path)
		if err == nil {
			return cfg, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, nil
}

// LoadOrDefault falls back to Default when the workspace has no config file.
func LoadOrDefault(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromTOML parses and validates config from raw TOML bytes.
func FromTOML(data []byte) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads config from path; the extension picks the format.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FromTOML(data)
	}
	return FromYAML(data)
}

const defaultTemplate = `planning:
  timeline_weeks: 26
  tasks_per_week: 4
  base_weeks:
    high: 8
    medium: 4
    low: 2

events:
  nats_url: ""
  subject_prefix: intervene

cache:
  redis_url: ""
  ttl: 10m

export:
  s3:
    bucket: ""
    region: ""
    endpoint: ""
    prefix: bundles/
`
