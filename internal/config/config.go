package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models kilnline.yml.
type Config struct {
	Workshop struct {
		Name           string   `yaml:"name"`
		DryingDays     int      `yaml:"drying_days"`
		SerialPrefixes []string `yaml:"serial_prefixes"`
		SerialTable    string   `yaml:"serial_table"`
		SerialS3       struct {
			Region    string `yaml:"region"`
			Endpoint  string `yaml:"endpoint"`
			PathStyle bool   `yaml:"path_style"`
		} `yaml:"serial_s3"`
	} `yaml:"workshop"`
	Filters struct {
		OrderRange struct {
			Min int64 `yaml:"min"`
			Max int64 `yaml:"max"`
		} `yaml:"order_range"`
		TypeOverrides map[string]string `yaml:"type_overrides"`
	} `yaml:"filters"`
	Writes struct {
		Attempts int           `yaml:"attempts"`
		Timeout  time.Duration `yaml:"timeout"`
		Backoff  time.Duration `yaml:"backoff"`
	} `yaml:"writes"`
	Storage struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`
}

var knownTypes = map[string]bool{
	"INNATO": true, "NATEY": true, "DOUBLE": true, "ZEN": true, "OVA": true, "CARDS": true,
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with kl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workshop.Name == "" {
		return fmt.Errorf("config.workshop.name is required")
	}
	if c.Workshop.DryingDays < 0 {
		return fmt.Errorf("config.workshop.drying_days must not be negative")
	}
	for _, p := range c.Workshop.SerialPrefixes {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("config.workshop.serial_prefixes contains an empty prefix")
		}
	}
	r := c.Filters.OrderRange
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("config.filters.order_range bounds must not be negative")
	}
	if r.Min != 0 && r.Max != 0 && r.Min > r.Max {
		return fmt.Errorf("config.filters.order_range min %d exceeds max %d", r.Min, r.Max)
	}
	for number, typ := range c.Filters.TypeOverrides {
		if strings.TrimSpace(number) == "" {
			return fmt.Errorf("config.filters.type_overrides has empty order number")
		}
		if !knownTypes[strings.ToUpper(strings.TrimSpace(typ))] {
			return fmt.Errorf("type override for order %s has unknown type %q", number, typ)
		}
	}
	if c.Writes.Attempts < 0 {
		return fmt.Errorf("config.writes.attempts must not be negative")
	}
	switch c.Storage.Driver {
	case "", "sqlite":
	case "pgx":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config.storage.dsn is required for the pgx driver")
		}
	default:
		return fmt.Errorf("config.storage.driver must be sqlite or pgx")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "kilnline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	return fmt.Sprintf(defaultTemplate, name)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a workshop.
func Default(name string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(name))).Decode(&cfg)
	cfg.Workshop.Name = name
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

const defaultTemplate = `workshop:
  name: %s
  drying_days: 5
  serial_prefixes: ["SW-", "SW"]
  # local .yml/.json file or s3://bucket/key
  serial_table: ""

filters:
  order_range:
    min: 0
    max: 0
  # legacy orders whose listing named the wrong instrument line
  type_overrides:
    "1187": DOUBLE
    "1204": DOUBLE
    "1311": INNATO

writes:
  attempts: 3
  timeout: 5s
  backoff: 200ms

storage:
  driver: sqlite
  dsn: ""
`
