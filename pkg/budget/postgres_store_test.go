package budget_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/requiem-run/requiem-core/pkg/budget"
)

func TestSQLStorage_GetFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := budget.NewSQLStorage(db)
	windowStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"used_cost_units", "window_start", "max_cost_units", "window_seconds"}).
		AddRow(int64(400), windowStart.Format(time.RFC3339Nano), int64(1000), int64(60))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT used_cost_units, window_start, max_cost_units, window_seconds FROM budget_states WHERE tenant_id = $1")).
		WithArgs("tenant-1").
		WillReturnRows(rows)

	state, found, err := store.Get("tenant-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "tenant-1", state.TenantID)
	require.Equal(t, int64(400), state.UsedCostUnits)
	require.Equal(t, int64(1000), state.Limit.MaxCostUnits)
	require.True(t, windowStart.Equal(state.WindowStart))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorage_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := budget.NewSQLStorage(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT used_cost_units, window_start, max_cost_units, window_seconds FROM budget_states WHERE tenant_id = $1")).
		WithArgs("tenant-missing").
		WillReturnRows(sqlmock.NewRows([]string{"used_cost_units", "window_start", "max_cost_units", "window_seconds"}))

	state, found, err := store.Get("tenant-missing")
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, state)
}

func TestSQLStorage_Set(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := budget.NewSQLStorage(db)
	state := &budget.BudgetState{
		TenantID:      "tenant-1",
		UsedCostUnits: 250,
		WindowStart:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Limit:         budget.Limit{MaxCostUnits: 1000, WindowSeconds: 60},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO budget_states")).
		WithArgs("tenant-1", int64(250), state.WindowStart.Format(time.RFC3339Nano), int64(1000), int64(60)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Set(state)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
