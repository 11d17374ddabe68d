package main

import (
	"github.com/requiem-run/requiem-core/pkg/errs"
	"github.com/requiem-run/requiem-core/pkg/tenant"
)

// staticKeyStore binds exactly the one operator-supplied REQUIEM_API_KEY
// to the one REQUIEM_TENANT_ID declared alongside it. A CLI invocation
// of this daemon has no membership service to consult, so the bound
// role is fixed at construction rather than looked up per call.
type staticKeyStore struct {
	apiKey   string
	tenantID string
	userID   string
	role     tenant.Role
}

func newStaticKeyStore(apiKey, tenantID string, role tenant.Role) *staticKeyStore {
	return &staticKeyStore{apiKey: apiKey, tenantID: tenantID, userID: "cli", role: role}
}

func (s *staticKeyStore) Lookup(apiKey string) (string, string, tenant.Role, error) {
	if s.apiKey == "" || apiKey != s.apiKey {
		return "", "", 0, errs.New(errs.KindUnauthorized, "API key not recognized", errs.SeverityWarning, "")
	}
	return s.tenantID, s.userID, s.role, nil
}
