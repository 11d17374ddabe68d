package tenant

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
	"github.com/requiem-run/requiem-core/pkg/identity"
)

// Resolver extracts and verifies a caller's tenant identity, never
// trusting request-body fields for tenant identification.
type Resolver interface {
	FromRequest(r *http.Request) (*InvocationContext, error)
	FromCLI() (*InvocationContext, error)
}

// Claims are the JWT claims a JWTResolver expects.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// MembershipStore looks up the membership binding a (tenantId, userId)
// pair to a role, so a resolver can reject expired or inactive grants.
type MembershipStore interface {
	Lookup(tenantID, userID string) (Membership, bool, error)
}

// APIKeyStore resolves a raw API key to the tenant and user it is bound
// to, for CLI env-var based resolution.
type APIKeyStore interface {
	Lookup(apiKey string) (tenantID, userID string, role Role, err error)
}

// JWTResolver resolves tenants from an `Authorization: Bearer <jwt>`
// header, validating the signature against an injected KeySet and then
// checking the declared membership before trusting the claims.
type JWTResolver struct {
	KeySet      identity.KeySet
	Memberships MembershipStore
	Clock       clock.Clock
	Environment Environment
}

func NewJWTResolver(ks identity.KeySet, memberships MembershipStore, c clock.Clock, env Environment) *JWTResolver {
	return &JWTResolver{KeySet: ks, Memberships: memberships, Clock: c, Environment: env}
}

func (r *JWTResolver) FromRequest(req *http.Request) (*InvocationContext, error) {
	now := r.Clock.NowISO()

	header := req.Header.Get("Authorization")
	if header == "" {
		return nil, errs.New(errs.KindUnauthorized, "missing Authorization header", errs.SeverityWarning, now)
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errs.New(errs.KindUnauthorized, "expected 'Bearer <token>' Authorization header", errs.SeverityWarning, now)
	}

	if r.KeySet == nil {
		return nil, errs.New(errs.KindUnauthorized, "no signing keys configured", errs.SeverityError, now)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, r.KeySet.KeyFunc())
	if err != nil || !token.Valid {
		return nil, errs.New(errs.KindUnauthorized, "invalid or expired token", errs.SeverityWarning, now)
	}

	if claims.Subject == "" || claims.TenantID == "" {
		return nil, errs.New(errs.KindUnauthorized, "token is missing subject or tenant binding", errs.SeverityWarning, now)
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, errs.New(errs.KindUnauthorized, "token carries an unrecognized role", errs.SeverityWarning, now)
	}

	if r.Memberships != nil {
		membership, found, lookupErr := r.Memberships.Lookup(claims.TenantID, claims.Subject)
		if lookupErr != nil {
			return nil, errs.New(errs.KindInternalError, "membership lookup failed", errs.SeverityError, now)
		}
		if !found || !membership.Active || membership.Expired(r.Clock.Now()) {
			return nil, errs.New(errs.KindMembershipRequired, "membership is missing, inactive, or expired", errs.SeverityWarning, now)
		}
		role = membership.Role
	}

	return &InvocationContext{
		TenantID:    claims.TenantID,
		UserID:      claims.Subject,
		Role:        role,
		RequestID:   req.Header.Get("X-Request-ID"),
		DerivedAt:   r.Clock.Now(),
		DerivedFrom: DerivedFromJWT,
		Environment: r.Environment,
	}, nil
}

func (r *JWTResolver) FromCLI() (*InvocationContext, error) {
	return nil, errs.New(errs.KindInternalError, "JWTResolver does not support CLI resolution", errs.SeverityError, r.Clock.NowISO())
}

// CLIResolver resolves tenants from the REQUIEM_TENANT_ID / REQUIEM_API_KEY
// environment variables, binding the key to the declared tenant.
type CLIResolver struct {
	APIKeys     APIKeyStore
	Clock       clock.Clock
	Environment Environment
}

func NewCLIResolver(store APIKeyStore, c clock.Clock, env Environment) *CLIResolver {
	return &CLIResolver{APIKeys: store, Clock: c, Environment: env}
}

func (r *CLIResolver) FromRequest(*http.Request) (*InvocationContext, error) {
	return nil, errs.New(errs.KindInternalError, "CLIResolver does not support request resolution", errs.SeverityError, r.Clock.NowISO())
}

func (r *CLIResolver) FromCLI() (*InvocationContext, error) {
	now := r.Clock.NowISO()

	declaredTenant := os.Getenv("REQUIEM_TENANT_ID")
	apiKey := os.Getenv("REQUIEM_API_KEY")
	if declaredTenant == "" || apiKey == "" {
		return nil, errs.New(errs.KindUnauthorized, "REQUIEM_TENANT_ID and REQUIEM_API_KEY must both be set", errs.SeverityWarning, now)
	}

	if r.APIKeys == nil {
		return nil, errs.New(errs.KindUnauthorized, "no API key store configured", errs.SeverityError, now)
	}

	tenantID, userID, role, err := r.APIKeys.Lookup(apiKey)
	if err != nil {
		return nil, errs.New(errs.KindUnauthorized, "API key not recognized", errs.SeverityWarning, now)
	}

	if tenantID != declaredTenant {
		return nil, errs.New(errs.KindTenantAccessDenied,
			fmt.Sprintf("API key is not bound to declared tenant %q", declaredTenant),
			errs.SeverityWarning, now)
	}

	return &InvocationContext{
		TenantID:    tenantID,
		UserID:      userID,
		Role:        role,
		DerivedAt:   r.Clock.Now(),
		DerivedFrom: DerivedFromServiceAccount,
		Environment: r.Environment,
	}, nil
}
