package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// configOverlay is the subset of Config an operator may override via a
// YAML file, read before env vars are applied on top.
type configOverlay struct {
	ToolOutputMaxBytes  *int    `yaml:"tool_output_max_bytes"`
	TriggerDataMaxBytes *int    `yaml:"trigger_data_max_bytes"`
	TenantID            *string `yaml:"tenant_id"`
	Enterprise          *bool   `yaml:"enterprise"`
	Assertions          *bool   `yaml:"assertions"`
}

func readOverlay(path string) (configOverlay, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return configOverlay{}, nil
	}
	if err != nil {
		return configOverlay{}, fmt.Errorf("config: read overlay %q: %w", path, err)
	}

	var overlay configOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return configOverlay{}, fmt.Errorf("config: parse overlay %q: %w", path, err)
	}
	return overlay, nil
}

func mergeOverlay(base Config, overlay configOverlay) Config {
	if overlay.ToolOutputMaxBytes != nil {
		base.ToolOutputMaxBytes = *overlay.ToolOutputMaxBytes
	}
	if overlay.TriggerDataMaxBytes != nil {
		base.TriggerDataMaxBytes = *overlay.TriggerDataMaxBytes
	}
	if overlay.TenantID != nil {
		base.TenantID = *overlay.TenantID
	}
	if overlay.Enterprise != nil {
		base.Enterprise = *overlay.Enterprise
	}
	if overlay.Assertions != nil {
		base.Assertions = *overlay.Assertions
	}
	return base
}
