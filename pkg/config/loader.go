package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads the sensor configuration from configDir/config.yaml,
// expands environment placeholders, merges it over the built-in defaults,
// and validates the result. Missing config files are not an error — the
// built-in defaults are used as-is, so a bare install runs without any
// configuration written.
func Initialize(configDir string) (*Config, error) {
	cfg := Defaults()
	cfg.configDir = configDir

	path := filepath.Join(configDir, "config.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if verr := Validate(cfg); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(raw)

	var loaded Config
	if err := yaml.Unmarshal(expanded, &loaded); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := mergo.Merge(cfg, &loaded, mergo.WithOverride); err != nil {
		return nil, NewLoadError(path, err)
	}
	cfg.configDir = configDir

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
