package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// LoadServerConfig reads and parses a ServerConfig from a YAML or JSON
// document (sigs.k8s.io/yaml decodes both), applies defaults, and
// validates the result.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server config file: %w", err)
	}

	return ParseServerConfig(data)
}

// ParseServerConfig parses a ServerConfig from an in-memory document.
func ParseServerConfig(data []byte) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	return cfg, nil
}
