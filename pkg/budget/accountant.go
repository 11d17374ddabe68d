package budget

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
)

// Storage persists BudgetState per tenant.
type Storage interface {
	Get(tenantID string) (*BudgetState, bool, error)
	Set(state *BudgetState) error
}

// Accountant reserves and reconciles tenant budget under a per-tenant
// mutex. Per-tenant fairness is serial within a tenant; across tenants
// reservations are unordered. Only one mutex is ever held at a time: the
// tenant-lock map's own guard mutex is never held while a tenant lock is
// held, and vice versa.
type Accountant struct {
	storage  Storage
	resolver TierResolver
	clock    clock.Clock

	mapMu       sync.Mutex
	tenantLocks map[string]*sync.Mutex
}

func NewAccountant(storage Storage, resolver TierResolver, c clock.Clock) *Accountant {
	return &Accountant{
		storage:     storage,
		resolver:    resolver,
		clock:       c,
		tenantLocks: make(map[string]*sync.Mutex),
	}
}

func (a *Accountant) lockFor(tenantID string) *sync.Mutex {
	a.mapMu.Lock()
	defer a.mapMu.Unlock()

	l, ok := a.tenantLocks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		a.tenantLocks[tenantID] = l
	}
	return l
}

func (a *Accountant) loadOrInit(tenantID string) (*BudgetState, error) {
	state, found, err := a.storage.Get(tenantID)
	if err != nil {
		return nil, err
	}
	if !found {
		state = &BudgetState{
			TenantID:    tenantID,
			WindowStart: a.clock.Now(),
			Limit:       a.resolver(tenantID),
		}
	}
	if state.windowExpired(a.clock.Now()) {
		state.UsedCostUnits = 0
		state.WindowStart = a.clock.Now()
	}
	return state, nil
}

// Reserve pre-debits estimate cost units, refusing with BUDGET_EXCEEDED
// when used+estimate exceeds the limit. Storage errors fail closed.
func (a *Accountant) Reserve(tenantID string, estimate int64) (*BudgetState, *Receipt, error) {
	lock := a.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	now := a.clock.NowISO()

	state, err := a.loadOrInit(tenantID)
	if err != nil {
		return nil, a.receipt(tenantID, "denied", estimate, "storage error"), errs.New(errs.KindInternalError, "budget storage read failed", errs.SeverityCritical, now).WithCause(err)
	}

	if state.UsedCostUnits+estimate > state.Limit.MaxCostUnits {
		return state, a.receipt(tenantID, "denied", estimate, "budget exceeded"),
			errs.New(errs.KindBudgetExceeded, fmt.Sprintf("reserving %d cost units would exceed limit %d", estimate, state.Limit.MaxCostUnits), errs.SeverityWarning, now)
	}

	state.UsedCostUnits += estimate
	if err := a.storage.Set(state); err != nil {
		return nil, a.receipt(tenantID, "denied", estimate, "storage error"), errs.New(errs.KindInternalError, "budget storage write failed", errs.SeverityCritical, now).WithCause(err)
	}

	return state, a.receipt(tenantID, "reserved", estimate, "within limits"), nil
}

// Reconcile adjusts used cost units by (actual - estimate), clamping
// negative results to zero.
func (a *Accountant) Reconcile(tenantID string, estimate, actual int64) (*BudgetState, error) {
	lock := a.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	now := a.clock.NowISO()

	state, err := a.loadOrInit(tenantID)
	if err != nil {
		return nil, errs.New(errs.KindInternalError, "budget storage read failed", errs.SeverityCritical, now).WithCause(err)
	}

	delta := actual - estimate
	state.UsedCostUnits += delta
	if state.UsedCostUnits < 0 {
		state.UsedCostUnits = 0
	}

	if err := a.storage.Set(state); err != nil {
		return nil, errs.New(errs.KindInternalError, "budget storage write failed", errs.SeverityCritical, now).WithCause(err)
	}

	return state, nil
}

// GetBudgetState observes the current state under the same per-tenant
// mutex used by Reserve/Reconcile, so callers see a consistent
// (used, limit, remaining).
func (a *Accountant) GetBudgetState(tenantID string) (*BudgetState, error) {
	lock := a.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	return a.loadOrInit(tenantID)
}

func (a *Accountant) receipt(tenantID, action string, costUnits int64, reason string) *Receipt {
	return &Receipt{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Action:    action,
		CostUnits: costUnits,
		Reason:    reason,
		Timestamp: a.clock.Now(),
	}
}
