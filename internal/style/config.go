package style

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/georender-go/internal/areatag"
)

//go:embed default.yaml
var defaultYAML []byte

// Config is the YAML style file: feature classes, area rules and filters
type Config struct {
	// DefaultClass names the class used when no tag matches
	DefaultClass string `yaml:"default_class"`
	// Classes maps "key.value" or "key.*" to a feature class
	Classes map[string]uint64 `yaml:"classes"`
	// Areas replaces the default area key rules when set
	Areas areatag.Rules `yaml:"areas,omitempty"`
	// Filters limit which features are written per record kind
	Filters Filters `yaml:"filters,omitempty"`
}

// Filters holds one optional filter per record kind
type Filters struct {
	Points *FilterConfig `yaml:"points,omitempty"`
	Lines  *FilterConfig `yaml:"lines,omitempty"`
	Areas  *FilterConfig `yaml:"areas,omitempty"`
}

// FilterConfig defines filtering rules for a record kind
type FilterConfig struct {
	// Include specifies which tag keys/values to include
	// If empty, all tags are included (no filtering)
	Include map[string][]string `yaml:"include,omitempty"`
	// Exclude specifies which tag keys/values to exclude
	// Applied after include rules
	Exclude map[string][]string `yaml:"exclude,omitempty"`
	// RequireAny specifies that at least one of these tags must be present
	RequireAny []string `yaml:"require_any,omitempty"`
}

// LoadConfig loads a style configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates style YAML
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse style YAML: %w", err)
	}
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("style has no classes")
	}
	if _, ok := cfg.Classes[cfg.DefaultClass]; !ok {
		return nil, fmt.Errorf("default class %q is not in the class table", cfg.DefaultClass)
	}
	return &cfg, nil
}

// DefaultConfig returns the embedded class table with no filters
func DefaultConfig() *Config {
	cfg, err := ParseConfig(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("style: embedded default is invalid: %v", err))
	}
	return cfg
}

// Filter checks if tags match the filter configuration
type Filter struct {
	cfg *FilterConfig
}

// NewFilter creates a filter from configuration
func NewFilter(cfg *FilterConfig) *Filter {
	if cfg == nil {
		return &Filter{cfg: &FilterConfig{}}
	}
	return &Filter{cfg: cfg}
}

// Match checks if the given tags match the filter rules
// Returns true if the feature should be included
func (f *Filter) Match(tags map[string]string) bool {
	if len(f.cfg.RequireAny) > 0 {
		found := false
		for _, key := range f.cfg.RequireAny {
			if _, ok := tags[key]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.cfg.Include) > 0 {
		matched := false
		for key, values := range f.cfg.Include {
			if tagValue, ok := tags[key]; ok && valueListed(values, tagValue) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for key, values := range f.cfg.Exclude {
		if tagValue, ok := tags[key]; ok && valueListed(values, tagValue) {
			return false
		}
	}

	return true
}

// an empty list matches any value
func valueListed(values []string, v string) bool {
	if len(values) == 0 {
		return true
	}
	for _, s := range values {
		if s == v || s == "*" {
			return true
		}
	}
	return false
}

// HasFilter returns true if filtering is enabled
func (f *Filter) HasFilter() bool {
	return len(f.cfg.Include) > 0 || len(f.cfg.Exclude) > 0 || len(f.cfg.RequireAny) > 0
}
