package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Marshal renders the configuration as a YAML document with the `pktt:`
// root key, suitable as input for Load.
func (cfg *GlobalConfig) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(configRoot{Pktt: *cfg})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
