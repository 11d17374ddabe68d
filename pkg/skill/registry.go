package skill

import (
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
)

// Registry is the source of truth for registered SkillDefinitions,
// keyed by (name, version).
type Registry interface {
	Register(def *SkillDefinition) error
	Resolve(name, version string) (*SkillDefinition, error)
	List() []*SkillDefinition
}

type skillVersionEntry struct {
	version *semver.Version
	def     *SkillDefinition
}

// InMemoryRegistry is a thread-safe, read-mostly in-memory skill
// registry, mirroring pkg/toolreg's InMemoryRegistry shape.
type InMemoryRegistry struct {
	mu     sync.RWMutex
	skills map[string][]skillVersionEntry
	clock  clock.Clock
}

func NewInMemoryRegistry(c clock.Clock) *InMemoryRegistry {
	return &InMemoryRegistry{
		skills: make(map[string][]skillVersionEntry),
		clock:  c,
	}
}

// Register fails with SKILL_ALREADY_REGISTERED if (name, version) is
// already present, or INTERNAL_ERROR if version is not valid semver.
func (r *InMemoryRegistry) Register(def *SkillDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.NowISO()

	parsed, err := semver.NewVersion(def.Version)
	if err != nil {
		return errs.New(errs.KindInternalError, "skill version is not valid semver", errs.SeverityCritical, now)
	}

	for _, entry := range r.skills[def.Name] {
		if entry.version.Equal(parsed) {
			return errs.New(errs.KindSkillAlreadyRegistered, "skill (name, version) already registered", errs.SeverityError, now)
		}
	}

	r.skills[def.Name] = append(r.skills[def.Name], skillVersionEntry{version: parsed, def: def})
	return nil
}

// Resolve returns the exact (name, version) match. If version is empty,
// returns the highest semver among entries with matching name.
func (r *InMemoryRegistry) Resolve(name, version string) (*SkillDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.NowISO()
	entries := r.skills[name]
	if len(entries) == 0 {
		return nil, errs.New(errs.KindInternalError, "skill not found", errs.SeverityWarning, now)
	}

	if version != "" {
		parsed, err := semver.NewVersion(version)
		if err != nil {
			return nil, errs.New(errs.KindInternalError, "requested skill version is not valid semver", errs.SeverityWarning, now)
		}
		for _, entry := range entries {
			if entry.version.Equal(parsed) {
				return entry.def, nil
			}
		}
		return nil, errs.New(errs.KindInternalError, "skill version not found", errs.SeverityWarning, now)
	}

	sorted := append([]skillVersionEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].version.LessThan(sorted[j].version) })
	return sorted[len(sorted)-1].def, nil
}

// List returns every registered skill definition across all versions.
func (r *InMemoryRegistry) List() []*SkillDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*SkillDefinition, 0)
	for _, entries := range r.skills {
		for _, entry := range entries {
			out = append(out, entry.def)
		}
	}
	return out
}
