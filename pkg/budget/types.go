// Package budget enforces a per-tenant windowed cost-unit budget with
// atomic reserve/reconcile under a per-tenant mutex. Failures are
// fail-closed: any storage error denies the reservation.
package budget

import "time"

// Limit is a tenant's configured budget window.
type Limit struct {
	MaxCostUnits  int64
	WindowSeconds int64
}

// BudgetState is the current window usage for one tenant.
type BudgetState struct {
	TenantID      string
	UsedCostUnits int64
	WindowStart   time.Time
	Limit         Limit
}

// Remaining returns the cost units left in the current window, floored
// at zero.
func (b BudgetState) Remaining() int64 {
	remaining := b.Limit.MaxCostUnits - b.UsedCostUnits
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b BudgetState) windowExpired(now time.Time) bool {
	return now.Sub(b.WindowStart) >= time.Duration(b.Limit.WindowSeconds)*time.Second
}

// Receipt documents a single reserve decision; Reconcile issues none.
type Receipt struct {
	ID        string
	TenantID  string
	Action    string // "reserved", "denied"
	CostUnits int64
	Reason    string
	Timestamp time.Time
}

// TierResolver resolves the Limit that applies to a tenant. Injected so
// tier lookup (plan, enterprise override, etc.) stays outside the
// accountant itself.
type TierResolver func(tenantID string) Limit
