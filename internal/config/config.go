package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config models harbor.yml.
type Config struct {
	Certification struct {
		Profiles    []CertificationProfile `yaml:"profiles" json:"profiles"`
		Active      map[string]string      `yaml:"active" json:"active"`
		DefaultType string                 `yaml:"default_type" json:"default_type,omitempty"`
	} `yaml:"certification" json:"certification"`
	Reports struct {
		BasePath string `yaml:"base_path" json:"base_path"`
	} `yaml:"reports" json:"reports"`
	Relay RelayConfig `yaml:"relay" json:"relay"`
}

// CertificationProfile is one immutable threshold set. A threshold change is a
// new (dataset_type, version) entry, never an edit of an existing one.
type CertificationProfile struct {
	DatasetType string     `yaml:"dataset_type" json:"dataset_type"`
	Version     string     `yaml:"version" json:"version"`
	Thresholds  Thresholds `yaml:"thresholds" json:"thresholds"`
}

type Thresholds struct {
	MinHours         float64 `yaml:"min_hours" json:"min_hours"`
	MinContributors  int     `yaml:"min_contributors" json:"min_contributors"`
	MinQAScore       float64 `yaml:"min_qa_score" json:"min_qa_score"`
	MinAgreement     float64 `yaml:"min_agreement" json:"min_agreement"`
	MaxRejectionRate float64 `yaml:"max_rejection_rate" json:"max_rejection_rate"`
	MinMetadata      float64 `yaml:"min_metadata" json:"min_metadata"`
}

type RelayConfig struct {
	IntervalSeconds int             `yaml:"interval_seconds" json:"interval_seconds,omitempty"`
	Webhooks        []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
	Kafka           KafkaConfig     `yaml:"kafka" json:"kafka"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"-"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers,omitempty"`
	Topic   string   `yaml:"topic" json:"topic,omitempty"`
	Events  []string `yaml:"events" json:"events,omitempty"`
}

// Enabled reports whether a Kafka sink is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Certification.Profiles) == 0 {
		return fmt.Errorf("config.certification.profiles is required")
	}
	seen := map[string]bool{}
	for i, p := range c.Certification.Profiles {
		if p.DatasetType == "" {
			return fmt.Errorf("profile %d has empty dataset_type", i)
		}
		if p.Version == "" {
			return fmt.Errorf("profile %s has empty version", p.DatasetType)
		}
		key := p.DatasetType + "@" + p.Version
		if seen[key] {
			return fmt.Errorf("profile %s defined more than once", key)
		}
		seen[key] = true
		if err := p.Thresholds.validate(); err != nil {
			return fmt.Errorf("profile %s: %w", key, err)
		}
	}
	if len(c.Certification.Active) == 0 {
		return fmt.Errorf("config.certification.active is required")
	}
	for datasetType, version := range c.Certification.Active {
		if !seen[datasetType+"@"+version] {
			return fmt.Errorf("active profile %s@%s not defined", datasetType, version)
		}
	}
	if dt := c.Certification.DefaultType; dt != "" {
		if _, ok := c.Certification.Active[dt]; !ok {
			return fmt.Errorf("default_type %s has no active profile", dt)
		}
	}
	for i, hook := range c.Relay.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("relay.webhooks[%d].url is required", i)
		}
	}
	if len(c.Relay.Kafka.Brokers) > 0 && c.Relay.Kafka.Topic == "" {
		return fmt.Errorf("relay.kafka.topic is required when brokers are set")
	}
	return nil
}

func (t Thresholds) validate() error {
	if t.MinHours < 0 {
		return fmt.Errorf("min_hours must be non-negative")
	}
	if t.MinContributors < 0 {
		return fmt.Errorf("min_contributors must be non-negative")
	}
	for name, v := range map[string]float64{
		"min_qa_score":       t.MinQAScore,
		"min_agreement":      t.MinAgreement,
		"max_rejection_rate": t.MaxRejectionRate,
		"min_metadata":       t.MinMetadata,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be within 0..100", name)
		}
	}
	return nil
}

// Profile returns the active profile for a dataset type, falling back to the
// default type when the type has none.
func (c *Config) Profile(datasetType string) (CertificationProfile, error) {
	version, ok := c.Certification.Active[datasetType]
	if !ok {
		if c.Certification.DefaultType == "" {
			return CertificationProfile{}, fmt.Errorf("no certification profile for dataset type %q", datasetType)
		}
		datasetType = c.Certification.DefaultType
		version = c.Certification.Active[datasetType]
	}
	return c.ProfileVersion(datasetType, version)
}

// ProfileVersion looks up an exact (type, version) profile.
func (c *Config) ProfileVersion(datasetType, version string) (CertificationProfile, error) {
	for _, p := range c.Certification.Profiles {
		if p.DatasetType == datasetType && p.Version == version {
			return p, nil
		}
	}
	return CertificationProfile{}, fmt.Errorf("certification profile %s@%s not found", datasetType, version)
}

// ActiveProfiles returns the active profile of every dataset type, sorted by type.
func (c *Config) ActiveProfiles() []CertificationProfile {
	types := make([]string, 0, len(c.Certification.Active))
	for t := range c.Certification.Active {
		types = append(types, t)
	}
	sort.Strings(types)
	out := make([]CertificationProfile, 0, len(types))
	for _, t := range types {
		if p, err := c.ProfileVersion(t, c.Certification.Active[t]); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// ReportBasePath returns the prefix for issued report references.
func (c *Config) ReportBasePath() string {
	if c.Reports.BasePath == "" {
		return "/reports"
	}
	return c.Reports.BasePath
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "harbor.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with harbor config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
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

const defaultTemplate = `certification:
  profiles:
    - dataset_type: lego
      version: v0.1
      thresholds:
        min_hours: 6
        min_contributors: 10
        min_qa_score: 90
        min_agreement: 88
        max_rejection_rate: 10
        min_metadata: 100

  active:
    lego: v0.1

  default_type: lego

reports:
  base_path: /reports

relay:
  interval_seconds: 2
`
