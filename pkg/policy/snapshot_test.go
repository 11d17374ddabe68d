package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/requiem-run/requiem-core/pkg/digest"
	"github.com/requiem-run/requiem-core/pkg/policy"
)

func TestCapturePolicySnapshotHash_NoFileReturnsSentinelHash(t *testing.T) {
	dir := t.TempDir()
	hash, err := policy.CapturePolicySnapshotHash([]string{filepath.Join(dir, "missing.json")})
	require.NoError(t, err)
	require.Equal(t, digest.Hash([]byte("__NO_POLICY_FILE__")), hash)
}

func TestCapturePolicySnapshotHash_ReturnsFirstExistingFile(t *testing.T) {
	dir := t.TempDir()
	second := filepath.Join(dir, "second.json")
	require.NoError(t, os.WriteFile(second, []byte(`{"rules":[]}`), 0600))

	hash, err := policy.CapturePolicySnapshotHash([]string{
		filepath.Join(dir, "missing.json"),
		second,
	})
	require.NoError(t, err)
	require.Equal(t, digest.Hash([]byte(`{"rules":[]}`)), hash)
}

func TestCapturePolicySnapshotHash_DeterministicForSameBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0600))

	h1, err := policy.CapturePolicySnapshotHash([]string{path})
	require.NoError(t, err)
	h2, err := policy.CapturePolicySnapshotHash([]string{path})
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}
