package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/menta2k/mockup-forge/pkg/types"
)

// DefaultOutputFormat is used when the configuration names none
const DefaultOutputFormat = "webp"

// ErrInvalid marks configuration validation failures
var ErrInvalid = errors.New("invalid configuration")

// Config holds the mockup configuration
type Config struct {
	Defaults   Defaults             `json:"defaults"`
	MockupSets map[string]MockupSet `json:"mockup_sets"`
}

// Defaults holds settings shared by every mockup set
type Defaults struct {
	OutputFormat string                 `json:"global_output_format"`
	EXIF         types.MetadataDefaults `json:"exif_defaults"`
}

// MockupSet is one entry of mockup_sets
type MockupSet struct {
	Coords        Coords `json:"coords"`
	Action        string `json:"action,omitempty"`
	TitlePrefix   string `json:"title_prefix_to_add,omitempty"`
	TitleSuffix   string `json:"title_suffix_to_add,omitempty"`
	WatermarkText string `json:"watermark_text,omitempty"`
}

// Coords is the frame rectangle as written in the configuration
type Coords struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Defaults: Defaults{
			OutputFormat: DefaultOutputFormat,
		},
		MockupSets: map[string]MockupSet{},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON configuration
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Defaults.OutputFormat == "" {
		config.Defaults.OutputFormat = DefaultOutputFormat
	}
	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.ContainsAny(c.Defaults.OutputFormat, `/\. `) {
		return fmt.Errorf("%w: defaults.global_output_format %q is not a file extension", ErrInvalid, c.Defaults.OutputFormat)
	}

	if len(c.MockupSets) == 0 {
		return fmt.Errorf("%w: mockup_sets cannot be empty", ErrInvalid)
	}

	for _, name := range c.names() {
		set := c.MockupSets[name]
		if name == "" || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("%w: mockup set name %q", ErrInvalid, name)
		}
		if _, err := parseAction(set.Action); err != nil {
			return fmt.Errorf("%w: mockup_sets.%s.action: %v", ErrInvalid, name, err)
		}
		if set.Coords.X < 0 || set.Coords.Y < 0 {
			return fmt.Errorf("%w: mockup_sets.%s.coords must not be negative", ErrInvalid, name)
		}
		if set.Coords.W <= 40 || set.Coords.H <= 20 {
			return fmt.Errorf("%w: mockup_sets.%s.coords must be wider than 40 and taller than 20, got %dx%d",
				ErrInvalid, name, set.Coords.W, set.Coords.H)
		}
	}

	return nil
}

// Definitions returns the parsed mockup definitions sorted by name.
// Call Validate first.
func (c *Config) Definitions() []types.MockupDefinition {
	names := c.names()
	defs := make([]types.MockupDefinition, 0, len(names))
	for _, name := range names {
		set := c.MockupSets[name]
		action, _ := parseAction(set.Action)
		defs = append(defs, types.MockupDefinition{
			Name:        name,
			Frame:       types.Frame(set.Coords),
			Action:      action,
			TitlePrefix: set.TitlePrefix,
			TitleSuffix: set.TitleSuffix,
			Watermark:   types.ParseWatermark(set.WatermarkText),
		})
	}
	return defs
}

// Definition returns the definition called name
func (c *Config) Definition(name string) (types.MockupDefinition, bool) {
	for _, def := range c.Definitions() {
		if def.Name == name {
			return def, true
		}
	}
	return types.MockupDefinition{}, false
}

func (c *Config) names() []string {
	names := make([]string, 0, len(c.MockupSets))
	for name := range c.MockupSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseAction(raw string) (types.Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(types.ActionGenerate):
		return types.ActionGenerate, nil
	case string(types.ActionSkip):
		return types.ActionSkip, nil
	default:
		return "", fmt.Errorf("unknown action %q (want generate or skip)", raw)
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "mockup-forge", "config.json")
}
