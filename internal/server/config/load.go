package config

import (
	"fmt"

	"github.com/yndnr/routemesh-go/internal/infra/confloader"
)

// Load builds a ServerConfig from the defaults, the optional YAML file
// at path, ROUTEMESH_ environment variables and overrides, then
// verifies it.
func Load(path string, overrides map[string]any) (*ServerConfig, error) {
	cfg, _, err := LoadWithSources(path, overrides)
	return cfg, err
}

// LoadWithSources is Load that also reports which sources were merged
// over the defaults, in order.
func LoadWithSources(path string, overrides map[string]any) (*ServerConfig, []string, error) {
	cfg := Default()
	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader.Sources(), nil
}
