package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overrides is the optional YAML file for data that changes faster than releases.
type Overrides struct {
	Leagues []string `yaml:"leagues"`
	// VenueIndoor maps a team display name (or "league:team") to a forced indoor flag.
	VenueIndoor map[string]bool `yaml:"venue_indoor"`
	// DomeNames extends the built-in list of covered stadium names.
	DomeNames []string `yaml:"dome_names"`
}

// LoadOverrides parses the overrides file at path.
func LoadOverrides(path string) (Overrides, error) {
	var ov Overrides
	data, err := os.ReadFile(path)
	if err != nil {
		return ov, fmt.Errorf("read overrides %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return ov, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	for i, l := range ov.Leagues {
		ov.Leagues[i] = strings.ToLower(strings.TrimSpace(l))
	}
	return ov, nil
}
