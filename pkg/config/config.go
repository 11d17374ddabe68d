// Package config resolves the core's typed Config from REQUIEM_* env
// vars, with an optional YAML overlay applied before env vars take
// precedence.
package config

import (
	"os"
	"strconv"
)

const (
	defaultToolOutputMaxBytes    = 1 << 20 // 1 MiB
	defaultTriggerDataMaxBytes   = 1 << 18 // 256 KiB
	envToolOutputMaxBytes        = "REQUIEM_TOOL_OUTPUT_MAX_BYTES"
	envTriggerDataMaxBytes       = "REQUIEM_TRIGGER_DATA_MAX_BYTES"
	envTenantID                  = "REQUIEM_TENANT_ID"
	envAPIKey                    = "REQUIEM_API_KEY"
	envEnterprise                = "REQUIEM_ENTERPRISE"
	envAssertions                = "REQUIEM_ASSERTIONS"
	enterpriseCostUnitsPerWindow = int64(1 << 40)
)

// Config is the core's typed runtime configuration.
type Config struct {
	ToolOutputMaxBytes  int
	TriggerDataMaxBytes int
	TenantID            string
	APIKey              string
	Enterprise          bool
	Assertions          bool
}

// Load resolves Config purely from the process environment, applying
// the documented defaults for anything unset.
func Load() Config {
	return applyEnv(Config{
		ToolOutputMaxBytes:  defaultToolOutputMaxBytes,
		TriggerDataMaxBytes: defaultTriggerDataMaxBytes,
	})
}

// LoadWithOverlay reads an optional YAML overlay file first (missing
// file is not an error; it is treated as an empty overlay), then
// applies env vars on top, which always take precedence.
func LoadWithOverlay(overlayPath string) (Config, error) {
	base := Config{
		ToolOutputMaxBytes:  defaultToolOutputMaxBytes,
		TriggerDataMaxBytes: defaultTriggerDataMaxBytes,
	}

	if overlayPath != "" {
		overlay, err := readOverlay(overlayPath)
		if err != nil {
			return Config{}, err
		}
		base = mergeOverlay(base, overlay)
	}

	return applyEnv(base), nil
}

// EnterpriseBudgetLimit returns the effectively-unbounded cost-units
// window budget used when REQUIEM_ENTERPRISE is set.
func EnterpriseBudgetLimit() int64 {
	return enterpriseCostUnitsPerWindow
}

func applyEnv(c Config) Config {
	if v := os.Getenv(envToolOutputMaxBytes); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ToolOutputMaxBytes = n
		}
	}
	if v := os.Getenv(envTriggerDataMaxBytes); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.TriggerDataMaxBytes = n
		}
	}
	if v := os.Getenv(envTenantID); v != "" {
		c.TenantID = v
	}
	if v := os.Getenv(envAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(envEnterprise); v != "" {
		c.Enterprise = v == "true"
	}
	if v := os.Getenv(envAssertions); v != "" {
		c.Assertions = v == "true"
	}
	return c
}
