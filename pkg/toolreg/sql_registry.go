package toolreg

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
)

// SQLRegistry persists tool definitions via database/sql, usable with
// either lib/pq (Postgres) or modernc.org/sqlite.
type SQLRegistry struct {
	db    *sql.DB
	clock clock.Clock
}

func NewSQLRegistry(db *sql.DB, c clock.Clock) *SQLRegistry {
	return &SQLRegistry{db: db, clock: c}
}

const sqlRegistrySchema = `
CREATE TABLE IF NOT EXISTS tool_registry (
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	definition_json TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (name, version)
);
`

func (r *SQLRegistry) Init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, sqlRegistrySchema)
	return err
}

type storedDefinition struct {
	Name                 string   `json:"name"`
	Version              string   `json:"version"`
	Description          string   `json:"description"`
	InputSchema          []byte   `json:"input_schema"`
	OutputSchema         []byte   `json:"output_schema"`
	Deterministic        bool     `json:"deterministic"`
	SideEffect           bool     `json:"side_effect"`
	Idempotent           bool     `json:"idempotent"`
	TenantScoped         bool     `json:"tenant_scoped"`
	RequiredCapabilities []string `json:"required_capabilities"`
	CostCents            int64    `json:"cost_cents"`
	CostEstimate         int64    `json:"cost_estimate"`
	Digest               string   `json:"digest"`
}

func toStored(def *ToolDefinition) storedDefinition {
	return storedDefinition{
		Name:                 def.Name,
		Version:              def.Version,
		Description:          def.Description,
		InputSchema:          def.InputSchema,
		OutputSchema:         def.OutputSchema,
		Deterministic:        def.Deterministic,
		SideEffect:           def.SideEffect,
		Idempotent:           def.Idempotent,
		TenantScoped:         def.TenantScoped,
		RequiredCapabilities: def.RequiredCapabilities,
		CostCents:            def.Cost.CostCents,
		CostEstimate:         def.Cost.Estimate,
		Digest:               def.Digest,
	}
}

func fromStored(s storedDefinition) *ToolDefinition {
	return &ToolDefinition{
		Name:                 s.Name,
		Version:              s.Version,
		Description:          s.Description,
		InputSchema:          s.InputSchema,
		OutputSchema:         s.OutputSchema,
		Deterministic:        s.Deterministic,
		SideEffect:           s.SideEffect,
		Idempotent:           s.Idempotent,
		TenantScoped:         s.TenantScoped,
		RequiredCapabilities: s.RequiredCapabilities,
		Cost:                 Cost{CostCents: s.CostCents, Estimate: s.CostEstimate},
		Digest:               s.Digest,
	}
}

// Register upserts the definition by (name, version). Handlers are not
// persisted; a rehydrated ToolDefinition must have its Handler rebound by
// the caller before use.
func (r *SQLRegistry) Register(def *ToolDefinition) error {
	now := r.clock.NowISO()

	if len(def.Digest) < minDigestLength {
		return errs.New(errs.KindInternalError, "tool digest is missing or too short", errs.SeverityCritical, now)
	}
	if _, err := semver.NewVersion(def.Version); err != nil {
		return errs.New(errs.KindInternalError, "tool version is not valid semver", errs.SeverityCritical, now)
	}

	payload, err := json.Marshal(toStored(def))
	if err != nil {
		return errs.New(errs.KindInternalError, "failed to marshal tool definition", errs.SeverityCritical, now)
	}

	ctx := context.Background()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tool_registry (name, version, definition_json, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, version) DO UPDATE
		SET definition_json = $3, created_at = $4
	`, def.Name, def.Version, string(payload), now)
	if err != nil {
		return errs.New(errs.KindInternalError, "registry persistence failed", errs.SeverityCritical, now).WithCause(err)
	}
	return nil
}

func (r *SQLRegistry) Resolve(name, version string) (*ToolDefinition, error) {
	now := r.clock.NowISO()
	ctx := context.Background()

	if version != "" {
		var payload string
		err := r.db.QueryRowContext(ctx,
			"SELECT definition_json FROM tool_registry WHERE name = $1 AND version = $2", name, version,
		).Scan(&payload)
		if err != nil {
			return nil, errs.New(errs.KindInternalError, "tool version not found", errs.SeverityWarning, now)
		}
		var stored storedDefinition
		if err := json.Unmarshal([]byte(payload), &stored); err != nil {
			return nil, errs.New(errs.KindInternalError, "corrupt registry row", errs.SeverityCritical, now)
		}
		return fromStored(stored), nil
	}

	rows, err := r.db.QueryContext(ctx, "SELECT version, definition_json FROM tool_registry WHERE name = $1", name)
	if err != nil {
		return nil, errs.New(errs.KindInternalError, "tool not found", errs.SeverityWarning, now)
	}
	defer func() { _ = rows.Close() }()

	type candidate struct {
		v *semver.Version
		s storedDefinition
	}
	var candidates []candidate
	for rows.Next() {
		var verStr, payload string
		if err := rows.Scan(&verStr, &payload); err != nil {
			continue
		}
		v, err := semver.NewVersion(verStr)
		if err != nil {
			continue
		}
		var stored storedDefinition
		if err := json.Unmarshal([]byte(payload), &stored); err != nil {
			continue
		}
		candidates = append(candidates, candidate{v: v, s: stored})
	}
	if len(candidates) == 0 {
		return nil, errs.New(errs.KindInternalError, "tool not found", errs.SeverityWarning, now)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].v.GreaterThan(candidates[j].v) })
	return fromStored(candidates[0].s), nil
}

func (r *SQLRegistry) List() []*ToolDefinition {
	ctx := context.Background()
	rows, err := r.db.QueryContext(ctx, "SELECT definition_json FROM tool_registry")
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []*ToolDefinition
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var stored storedDefinition
		if err := json.Unmarshal([]byte(payload), &stored); err != nil {
			continue
		}
		out = append(out, fromStored(stored))
	}
	return out
}
