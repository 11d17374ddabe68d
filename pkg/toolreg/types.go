// Package toolreg implements the tool registry and invocation gate: the
// mandatory entry point for every side-effecting or tenant-scoped call.
package toolreg

import (
	"context"

	"github.com/requiem-run/requiem-core/pkg/tenant"
)

// CallContext carries the invocation context and a cancellable Go context
// into a tool handler.
type CallContext struct {
	context.Context
	Invocation tenant.InvocationContext
	TimeoutMS  int64
}

// Cost is the tenant-scoped budget cost of invoking a tool.
type Cost struct {
	CostCents   int64
	Estimate    int64
	Description string
}

// ToolDefinition is a registry entry.
type ToolDefinition struct {
	Name        string
	Version     string // semver MAJOR.MINOR.PATCH
	Description string

	InputSchema  []byte // JSON Schema document
	OutputSchema []byte // JSON Schema document

	Deterministic bool
	SideEffect    bool
	Idempotent    bool
	TenantScoped  bool

	RequiredCapabilities []string

	Cost Cost

	// Digest is BLAKE3 over canonical {name, version, schemas}; a
	// registry refuses a tool whose digest is absent or shorter than
	// 32 chars.
	Digest string

	Handler Handler
}

// Handler executes a tool's side effect given validated input.
type Handler func(ctx *CallContext, input interface{}) (interface{}, error)
