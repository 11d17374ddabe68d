package budget

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// SQLStorage implements Storage via database/sql, usable with either
// lib/pq (Postgres) or modernc.org/sqlite.
type SQLStorage struct {
	db *sql.DB
}

func NewSQLStorage(db *sql.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

const sqlBudgetSchema = `
CREATE TABLE IF NOT EXISTS budget_states (
	tenant_id TEXT PRIMARY KEY,
	used_cost_units BIGINT NOT NULL,
	window_start TEXT NOT NULL,
	max_cost_units BIGINT NOT NULL,
	window_seconds BIGINT NOT NULL
);
`

func (s *SQLStorage) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqlBudgetSchema)
	return err
}

func (s *SQLStorage) Get(tenantID string) (*BudgetState, bool, error) {
	ctx := context.Background()
	row := s.db.QueryRowContext(ctx,
		"SELECT used_cost_units, window_start, max_cost_units, window_seconds FROM budget_states WHERE tenant_id = $1",
		tenantID)

	var state BudgetState
	var windowStart string
	err := row.Scan(&state.UsedCostUnits, &windowStart, &state.Limit.MaxCostUnits, &state.Limit.WindowSeconds)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get budget state: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, windowStart)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt window_start: %w", err)
	}
	state.TenantID = tenantID
	state.WindowStart = parsed
	return &state, true, nil
}

func (s *SQLStorage) Set(state *BudgetState) error {
	ctx := context.Background()
	query := `
		INSERT INTO budget_states (tenant_id, used_cost_units, window_start, max_cost_units, window_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id) DO UPDATE SET
			used_cost_units = EXCLUDED.used_cost_units,
			window_start = EXCLUDED.window_start,
			max_cost_units = EXCLUDED.max_cost_units,
			window_seconds = EXCLUDED.window_seconds
	`
	_, err := s.db.ExecContext(ctx, query,
		state.TenantID, state.UsedCostUnits, state.WindowStart.Format(time.RFC3339Nano),
		state.Limit.MaxCostUnits, state.Limit.WindowSeconds)
	if err != nil {
		return fmt.Errorf("failed to persist budget state: %w", err)
	}
	return nil
}
