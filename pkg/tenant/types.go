// Package tenant resolves the caller of every invocation into a verified,
// immutable InvocationContext and enforces the role hierarchy.
package tenant

import (
	"fmt"
	"time"
)

// Role is the fixed hierarchy viewer < member < admin < owner.
type Role int

const (
	RoleViewer Role = iota
	RoleMember
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// ParseRole maps a role string from a claim or store record onto Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "viewer":
		return RoleViewer, nil
	case "member":
		return RoleMember, nil
	case "admin":
		return RoleAdmin, nil
	case "owner":
		return RoleOwner, nil
	default:
		return 0, fmt.Errorf("tenant: unknown role %q", s)
	}
}

// HasRequiredRole reports whether actual meets or exceeds required in the
// fixed hierarchy.
func HasRequiredRole(actual, required Role) bool {
	return actual >= required
}

// DerivationSource names how an InvocationContext was produced.
type DerivationSource string

const (
	DerivedFromJWT            DerivationSource = "jwt"
	DerivedFromSession        DerivationSource = "session"
	DerivedFromAPIKey         DerivationSource = "api_key"
	DerivedFromServiceAccount DerivationSource = "service_account"
)

// Environment distinguishes production callers from development ones.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
)

// InvocationContext is the immutable, per-call packet threaded through the
// pipeline. It is never mutated after creation; child steps receive a copy
// with Depth incremented.
type InvocationContext struct {
	TenantID      string
	UserID        string
	Role          Role
	RequestID     string
	TraceID       string
	CorrelationID string
	Depth         int
	DerivedAt     time.Time
	DerivedFrom   DerivationSource
	Environment   Environment
}

// WithIncrementedDepth returns a copy of ctx with Depth+1, leaving ctx
// untouched.
func (ctx InvocationContext) WithIncrementedDepth() InvocationContext {
	ctx.Depth++
	return ctx
}

// Membership records a tenant-scoped role grant, optionally time-bounded.
type Membership struct {
	TenantID  string
	UserID    string
	Role      Role
	Active    bool
	ExpiresAt *time.Time
}

// Expired reports whether the membership's expiry has passed as of now.
func (m Membership) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}
