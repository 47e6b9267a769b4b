package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML settings file, expands environment references and
// validates the result.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("settings file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read settings file %q: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &s); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return &s, nil
}
