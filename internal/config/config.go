package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models scopeline.yml: the business-service catalog (an opaque
// read-only lookup as far as the engine is concerned), the discovery ready
// threshold and API settings.
type Config struct {
	Catalog   map[string]ServiceInfo `yaml:"catalog"`
	Discovery struct {
		// ReadyThreshold is the meeting-record coverage in (0,1] needed
		// before the engagement may leave discovery.
		ReadyThreshold float64 `yaml:"ready_threshold"`
	} `yaml:"discovery"`
	API struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"api"`
}

type ServiceInfo struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Summary  string `yaml:"summary,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run sl init or copy a scopeline.yml", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Catalog) == 0 {
		return fmt.Errorf("config.catalog is required")
	}
	for id, svc := range c.Catalog {
		if id == "" {
			return fmt.Errorf("config.catalog contains empty service id")
		}
		if svc.Name == "" {
			return fmt.Errorf("catalog service %s has no name", id)
		}
		if svc.Category == "" {
			return fmt.Errorf("catalog service %s has no category", id)
		}
	}
	t := c.Discovery.ReadyThreshold
	if t <= 0 || t > 1 {
		return fmt.Errorf("config.discovery.ready_threshold must be in (0,1], got %v", t)
	}
	return nil
}

// Service returns catalog info for a service id.
func (c *Config) Service(id string) (ServiceInfo, bool) {
	svc, ok := c.Catalog[id]
	return svc, ok
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "scopeline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
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

const defaultTemplate = `catalog:
  impl-crm:
    name: "CRM Implementation"
    category: implementation
    summary: "Set up and configure a CRM for the sales team"
  impl-helpdesk:
    name: "Helpdesk Implementation"
    category: implementation
    summary: "Set up a shared support inbox with routing"
  ai-faq-bot:
    name: "AI FAQ Bot"
    category: automation
    summary: "Automated first-line answers on the client's channels"
  ai-lead-scoring:
    name: "AI Lead Scoring"
    category: automation
    summary: "Prioritize inbound leads by fit and intent"
  data-migration:
    name: "Data Migration"
    category: implementation
    summary: "Move and clean existing customer data"
  workshop-automation:
    name: "Automation Workshop"
    category: advisory
    summary: "Half-day workshop; no technical specification needed"

discovery:
  ready_threshold: 0.75

api:
  jwt_secret: ""
  allow_legacy_actor_header: true
`
