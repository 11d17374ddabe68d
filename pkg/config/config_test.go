package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/requiem-run/requiem-core/pkg/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"REQUIEM_TOOL_OUTPUT_MAX_BYTES",
		"REQUIEM_TRIGGER_DATA_MAX_BYTES",
		"REQUIEM_TENANT_ID",
		"REQUIEM_API_KEY",
		"REQUIEM_ENTERPRISE",
		"REQUIEM_ASSERTIONS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := config.Load()
	require.Equal(t, 1<<20, cfg.ToolOutputMaxBytes)
	require.Equal(t, 1<<18, cfg.TriggerDataMaxBytes)
	require.False(t, cfg.Enterprise)
	require.False(t, cfg.Assertions)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REQUIEM_TOOL_OUTPUT_MAX_BYTES", "2048")
	t.Setenv("REQUIEM_TRIGGER_DATA_MAX_BYTES", "4096")
	t.Setenv("REQUIEM_TENANT_ID", "tenant-1")
	t.Setenv("REQUIEM_API_KEY", "key-1")
	t.Setenv("REQUIEM_ENTERPRISE", "true")
	t.Setenv("REQUIEM_ASSERTIONS", "true")

	cfg := config.Load()
	require.Equal(t, 2048, cfg.ToolOutputMaxBytes)
	require.Equal(t, 4096, cfg.TriggerDataMaxBytes)
	require.Equal(t, "tenant-1", cfg.TenantID)
	require.Equal(t, "key-1", cfg.APIKey)
	require.True(t, cfg.Enterprise)
	require.True(t, cfg.Assertions)
}

func TestLoadWithOverlay_MissingFileFallsBackToDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.LoadWithOverlay(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 1<<20, cfg.ToolOutputMaxBytes)
}

func TestLoadWithOverlay_FileValuesApplyThenEnvWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("REQUIEM_TENANT_ID", "from-env")

	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tool_output_max_bytes: 777\ntenant_id: from-file\n"), 0o600))

	cfg, err := config.LoadWithOverlay(path)
	require.NoError(t, err)
	require.Equal(t, 777, cfg.ToolOutputMaxBytes)
	require.Equal(t, "from-env", cfg.TenantID)
}

func TestEnterpriseBudgetLimit_IsPositiveAndLarge(t *testing.T) {
	require.Greater(t, config.EnterpriseBudgetLimit(), int64(1<<30))
}
