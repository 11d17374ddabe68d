package toolreg

import (
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
)

const minDigestLength = 32

// Registry is the source of truth for registered tools.
type Registry interface {
	Register(def *ToolDefinition) error
	Resolve(name, version string) (*ToolDefinition, error)
	List() []*ToolDefinition
}

type versionEntry struct {
	version *semver.Version
	def     *ToolDefinition
}

// InMemoryRegistry is a thread-safe, read-mostly in-memory registry,
// keyed by (name, version).
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string][]versionEntry
	clock clock.Clock
}

func NewInMemoryRegistry(c clock.Clock) *InMemoryRegistry {
	return &InMemoryRegistry{
		tools: make(map[string][]versionEntry),
		clock: c,
	}
}

// Register fails with INTERNAL_ERROR if (name, version) is already
// registered or if digest is missing/short.
func (r *InMemoryRegistry) Register(def *ToolDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.NowISO()

	if len(def.Digest) < minDigestLength {
		return errs.New(errs.KindInternalError, "tool digest is missing or too short", errs.SeverityCritical, now)
	}

	parsed, err := semver.NewVersion(def.Version)
	if err != nil {
		return errs.New(errs.KindInternalError, "tool version is not valid semver", errs.SeverityCritical, now)
	}

	for _, entry := range r.tools[def.Name] {
		if entry.version.Equal(parsed) {
			return errs.New(errs.KindInternalError, "tool (name, version) already registered", errs.SeverityCritical, now)
		}
	}

	r.tools[def.Name] = append(r.tools[def.Name], versionEntry{version: parsed, def: def})
	return nil
}

// Resolve returns the exact (name, version) match. If version is empty,
// returns the highest semver among entries with matching name.
func (r *InMemoryRegistry) Resolve(name, version string) (*ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.NowISO()
	entries := r.tools[name]
	if len(entries) == 0 {
		return nil, errs.New(errs.KindInternalError, "tool not found", errs.SeverityWarning, now)
	}

	if version == "" {
		sorted := make([]versionEntry, len(entries))
		copy(sorted, entries)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].version.GreaterThan(sorted[j].version)
		})
		return sorted[0].def, nil
	}

	for _, entry := range entries {
		if entry.def.Version == version {
			return entry.def, nil
		}
	}
	return nil, errs.New(errs.KindInternalError, "tool version not found", errs.SeverityWarning, now)
}

func (r *InMemoryRegistry) List() []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ToolDefinition, 0)
	for _, entries := range r.tools {
		for _, entry := range entries {
			out = append(out, entry.def)
		}
	}
	return out
}
