package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models charterline.yml.
type Config struct {
	Governance struct {
		Founders []string `yaml:"founders" json:"founders"`
	} `yaml:"governance" json:"governance"`
	Agreements struct {
		NDAVersion          string `yaml:"nda_version" json:"nda_version"`
		IPAssignmentVersion string `yaml:"ip_assignment_version" json:"ip_assignment_version"`
	} `yaml:"agreements" json:"agreements"`
	Logging struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"logging" json:"logging"`
	Normalization struct {
		CanonicalApps []CanonicalApp `yaml:"canonical_apps" json:"canonical_apps"`
		SeedApps      []SeedApp      `yaml:"seed_apps" json:"seed_apps"`
	} `yaml:"normalization" json:"normalization"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
}

// CanonicalApp is the authoritative metadata for an app that may have been
// recorded under a variant name.
type CanonicalApp struct {
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases" json:"aliases,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
	RepoURL     string   `yaml:"repo_url" json:"repo_url,omitempty"`
	Lifecycle   string   `yaml:"lifecycle" json:"lifecycle,omitempty"`
}

// SeedApp is an app that must exist after normalization.
type SeedApp struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Scope       string `yaml:"scope" json:"scope,omitempty"`
	Lifecycle   string `yaml:"lifecycle" json:"lifecycle,omitempty"`
}

type WebhookConfig struct {
	URL     string   `yaml:"url" json:"url"`
	Secret  string   `yaml:"secret" json:"-"`
	Actions []string `yaml:"actions" json:"actions,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with charter config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

func validLifecycle(v string) bool {
	return v == "" || v == "external" || v == "internal-only"
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for _, f := range c.Governance.Founders {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("config.governance.founders contains empty actor id")
		}
	}
	if c.Agreements.NDAVersion == "" || c.Agreements.IPAssignmentVersion == "" {
		return fmt.Errorf("config.agreements.nda_version and ip_assignment_version are required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config.logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.logging.format %q is not one of text, json", c.Logging.Format)
	}
	seen := map[string]bool{}
	for i, app := range c.Normalization.CanonicalApps {
		if strings.TrimSpace(app.Name) == "" {
			return fmt.Errorf("canonical app %d has empty name", i)
		}
		if !validLifecycle(app.Lifecycle) {
			return fmt.Errorf("canonical app %s has invalid lifecycle %s", app.Name, app.Lifecycle)
		}
		key := strings.ToLower(app.Name)
		if seen[key] {
			return fmt.Errorf("canonical app %s listed twice", app.Name)
		}
		seen[key] = true
	}
	for i, app := range c.Normalization.SeedApps {
		if strings.TrimSpace(app.Name) == "" {
			return fmt.Errorf("seed app %d has empty name", i)
		}
		if !validLifecycle(app.Lifecycle) {
			return fmt.Errorf("seed app %s has invalid lifecycle %s", app.Name, app.Lifecycle)
		}
	}
	for i, wh := range c.Webhooks {
		u, err := url.Parse(wh.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook %d has invalid url %q", i, wh.URL)
		}
	}
	return nil
}

// IsFounder reports whether actor may take founder decisions. An empty
// founders list disables the check.
func (c *Config) IsFounder(actor string) bool {
	if c == nil || len(c.Governance.Founders) == 0 {
		return true
	}
	for _, f := range c.Governance.Founders {
		if f == actor {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "charterline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `governance:
  founders: [founder]

agreements:
  nda_version: "2024.1"
  ip_assignment_version: "2024.1"

logging:
  level: info
  format: text

normalization:
  canonical_apps: []
  seed_apps: []

webhooks: []
`
