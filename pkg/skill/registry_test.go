package skill_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/requiem-run/requiem-core/pkg/errs"
	"github.com/requiem-run/requiem-core/pkg/skill"
)

func TestRegistry_RejectsDuplicateNameVersion(t *testing.T) {
	r := skill.NewInMemoryRegistry(testClock())
	def := &skill.SkillDefinition{Name: "deploy", Version: "1.0.0"}
	require.NoError(t, r.Register(def))

	err := r.Register(def)
	require.Error(t, err)
	require.Equal(t, errs.KindSkillAlreadyRegistered, err.(*errs.Envelope).Code)
}

func TestRegistry_ResolveExactVersion(t *testing.T) {
	r := skill.NewInMemoryRegistry(testClock())
	require.NoError(t, r.Register(&skill.SkillDefinition{Name: "deploy", Version: "1.0.0"}))
	require.NoError(t, r.Register(&skill.SkillDefinition{Name: "deploy", Version: "2.0.0"}))

	def, err := r.Resolve("deploy", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", def.Version)
}

func TestRegistry_ResolveNoVersionReturnsHighestSemver(t *testing.T) {
	r := skill.NewInMemoryRegistry(testClock())
	require.NoError(t, r.Register(&skill.SkillDefinition{Name: "deploy", Version: "1.2.0"}))
	require.NoError(t, r.Register(&skill.SkillDefinition{Name: "deploy", Version: "1.10.0"}))

	def, err := r.Resolve("deploy", "")
	require.NoError(t, err)
	require.Equal(t, "1.10.0", def.Version)
}

func TestRegistry_ResolveMissingSkillFails(t *testing.T) {
	r := skill.NewInMemoryRegistry(testClock())
	_, err := r.Resolve("missing", "")
	require.Error(t, err)
}

func TestRegistry_ListReturnsAllVersions(t *testing.T) {
	r := skill.NewInMemoryRegistry(testClock())
	require.NoError(t, r.Register(&skill.SkillDefinition{Name: "a", Version: "1.0.0"}))
	require.NoError(t, r.Register(&skill.SkillDefinition{Name: "b", Version: "1.0.0"}))

	require.Len(t, r.List(), 2)
}
