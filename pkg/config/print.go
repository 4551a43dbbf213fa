package config

import (
	yaml "gopkg.in/yaml.v3"
)

// YAML renders the effective configuration in the same shape the config
// files use.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
