package budget_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/requiem-run/requiem-core/pkg/budget"
	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
)

var errNotAvailable = errors.New("storage unavailable")

func fixedLimit(tenantID string) budget.Limit {
	return budget.Limit{MaxCostUnits: 1000, WindowSeconds: 60}
}

func TestAccountant_ReserveWithinLimit(t *testing.T) {
	a := budget.NewAccountant(budget.NewMemoryStorage(), fixedLimit, clock.NewFrozenClock(time.Now()))

	state, receipt, err := a.Reserve("tenant-1", 400)
	require.NoError(t, err)
	require.Equal(t, int64(400), state.UsedCostUnits)
	require.Equal(t, "reserved", receipt.Action)
	require.Equal(t, int64(600), state.Remaining())
}

func TestAccountant_ReserveExceedsLimitDenies(t *testing.T) {
	a := budget.NewAccountant(budget.NewMemoryStorage(), fixedLimit, clock.NewFrozenClock(time.Now()))

	_, _, err := a.Reserve("tenant-1", 900)
	require.NoError(t, err)

	_, receipt, err := a.Reserve("tenant-1", 200)
	require.Error(t, err)
	require.Equal(t, errs.KindBudgetExceeded, err.(*errs.Envelope).Code)
	require.Equal(t, "denied", receipt.Action)
}

func TestAccountant_ReconcileAdjustsDownward(t *testing.T) {
	a := budget.NewAccountant(budget.NewMemoryStorage(), fixedLimit, clock.NewFrozenClock(time.Now()))

	_, _, err := a.Reserve("tenant-1", 500)
	require.NoError(t, err)

	state, err := a.Reconcile("tenant-1", 500, 300)
	require.NoError(t, err)
	require.Equal(t, int64(300), state.UsedCostUnits)
}

func TestAccountant_ReconcileClampsAtZero(t *testing.T) {
	a := budget.NewAccountant(budget.NewMemoryStorage(), fixedLimit, clock.NewFrozenClock(time.Now()))

	_, _, err := a.Reserve("tenant-1", 100)
	require.NoError(t, err)

	state, err := a.Reconcile("tenant-1", 100, 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), state.UsedCostUnits)
}

func TestAccountant_WindowResetsAfterExpiry(t *testing.T) {
	base := time.Now()
	seeded := clock.NewSeededClock(base, 61*time.Second)
	a := budget.NewAccountant(budget.NewMemoryStorage(), fixedLimit, seeded)

	_, _, err := a.Reserve("tenant-1", 900)
	require.NoError(t, err)

	state, _, err := a.Reserve("tenant-1", 900)
	require.NoError(t, err)
	require.Equal(t, int64(900), state.UsedCostUnits)
}

func TestAccountant_FailsClosedOnStorageError(t *testing.T) {
	a := budget.NewAccountant(failingStorage{}, fixedLimit, clock.NewFrozenClock(time.Now()))

	_, _, err := a.Reserve("tenant-1", 10)
	require.Error(t, err)
	require.Equal(t, errs.KindInternalError, err.(*errs.Envelope).Code)
}

type failingStorage struct{}

func (failingStorage) Get(tenantID string) (*budget.BudgetState, bool, error) {
	return nil, false, errNotAvailable
}

func (failingStorage) Set(state *budget.BudgetState) error {
	return errNotAvailable
}
