// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	// DatabasePath is the automatic snapshot database file.
	DatabasePath string `yaml:"databasePath"`
	// LayoutsDir holds named layouts saved explicitly by the user.
	LayoutsDir string `yaml:"layoutsDir"`
	// CommandBudget caps executed commands per restore.
	CommandBudget int `yaml:"commandBudget"`
	// ImprovingLimit stops candidate ranking once this many improving
	// commands are known.
	ImprovingLimit int `yaml:"improvingLimit"`
	// GeometryTolerance is the relative size slack the resize pass
	// accepts before correcting a container.
	GeometryTolerance float64 `yaml:"geometryTolerance"`
	// SettleDelayMs is how long the daemon waits after an event before
	// reading the tree, so the manager finishes its own bookkeeping.
	SettleDelayMs int `yaml:"settleDelayMs"`
	// TriggerCommands are the binding words that cause a snapshot.
	TriggerCommands []string  `yaml:"triggerCommands"`
	LogLevel        string    `yaml:"logLevel"`
	Telemetry       Telemetry `yaml:"telemetry"`
}

// Telemetry configures the optional OTLP export. An empty endpoint
// disables it.
type Telemetry struct {
	Endpoint string `yaml:"endpoint"`
	// Headers is a comma-separated key=value list sent with every export.
	Headers string `yaml:"headers"`
}

var defaultTriggerCommands = []string{"move", "swap", "resize", "split", "layout", "mode"}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults, and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	home, _ := os.UserHomeDir()
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(home, ".config", "swayback", "layouts.json")
	}
	if c.LayoutsDir == "" {
		c.LayoutsDir = filepath.Join(home, ".config", "swayback", "layouts")
	}
	if c.CommandBudget == 0 {
		c.CommandBudget = 50
	}
	if c.ImprovingLimit == 0 {
		c.ImprovingLimit = 15
	}
	if c.GeometryTolerance == 0 {
		c.GeometryTolerance = 0.1
	}
	if c.SettleDelayMs == 0 {
		c.SettleDelayMs = 5
	}
	if len(c.TriggerCommands) == 0 {
		c.TriggerCommands = append([]string(nil), defaultTriggerCommands...)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate performs basic sanity checks.
func (c *Config) Validate() error {
	if c.CommandBudget < 0 {
		return fmt.Errorf("commandBudget cannot be negative")
	}
	if c.ImprovingLimit < 0 {
		return fmt.Errorf("improvingLimit cannot be negative")
	}
	if c.GeometryTolerance < 0 || c.GeometryTolerance >= 1 {
		return fmt.Errorf("geometryTolerance must be within [0, 1), got %g", c.GeometryTolerance)
	}
	if c.SettleDelayMs < 0 {
		return fmt.Errorf("settleDelayMs cannot be negative")
	}
	seen := map[string]struct{}{}
	for _, trigger := range c.TriggerCommands {
		if trigger == "" {
			return fmt.Errorf("trigger command cannot be empty")
		}
		if strings.ContainsAny(trigger, " \t") {
			return fmt.Errorf("trigger command %q must be a single word", trigger)
		}
		if _, exists := seen[trigger]; exists {
			return fmt.Errorf("duplicate trigger command %q", trigger)
		}
		seen[trigger] = struct{}{}
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Telemetry.Endpoint == "" && c.Telemetry.Headers != "" {
		return fmt.Errorf("telemetry headers require an endpoint")
	}
	return nil
}

// DiffSerialized returns a line diff between two serialized configuration
// payloads, empty when they match.
func DiffSerialized(previous, current []byte) string {
	return cmp.Diff(splitLines(previous), splitLines(current))
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}
