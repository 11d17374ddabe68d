package toolreg

import (
	"context"
	"fmt"

	"github.com/requiem-run/requiem-core/pkg/budget"
	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/digest"
	"github.com/requiem-run/requiem-core/pkg/errs"
	"github.com/requiem-run/requiem-core/pkg/outputlimit"
	"github.com/requiem-run/requiem-core/pkg/policy"
	"github.com/requiem-run/requiem-core/pkg/tenant"
)

// MaxDepth bounds recursive tool-call nesting (spec §5, invariant 5).
// The root call runs at depth 0, so the rule below first rejects the
// 12th call in a chain that nests one level deeper each time, not the
// 11th: depths 0..10 (11 calls) all pass, depth 11 (the 12th call)
// fails.
const MaxDepth = 10

// CallResult is the envelope returned from a successful Call.
type CallResult struct {
	Result        interface{}
	Hash          string
	DurationMS    int64
	FromCache     bool
	Deterministic bool
}

// Gate is the mandatory entry point for every side-effecting or
// tenant-scoped tool invocation; it is the only caller of a registered
// Handler. Steps run in the fixed order documented on Call.
type Gate struct {
	Registry   Registry
	Accountant *budget.Accountant
	Limiter    *outputlimit.Limiter
	Ledger     *policy.Ledger
	Clock      clock.Clock

	// PolicySnapshotHash is resolved once per call via this injected
	// function rather than a module-level global, so tests can pin it.
	PolicySnapshotHash func() (string, error)
}

// Call resolves name@version and runs the 11-step invocation pipeline
// against input under ctx. ctx.Depth is incremented before the handler
// runs so recursive tool calls see their own depth.
func (g *Gate) Call(parent context.Context, name, version string, input interface{}, ctx tenant.InvocationContext) (*CallResult, error) {
	now := g.Clock.NowISO()

	// 1. Tool lookup.
	def, err := g.Registry.Resolve(name, version)
	if err != nil {
		return nil, errs.New(errs.KindInternalError, fmt.Sprintf("tool %s@%s not found", name, version), errs.SeverityWarning, now).WithCause(err)
	}

	// 2. Recursion bound.
	if ctx.Depth > MaxDepth {
		return nil, errs.New(errs.KindInvariantViolation, "max call depth exceeded", errs.SeverityCritical, now)
	}

	// 3. Tenant scope.
	if def.TenantScoped && ctx.TenantID == "" {
		return nil, errs.New(errs.KindUnauthorized, "tool requires a tenant-scoped caller", errs.SeverityError, now)
	}

	// 4. RBAC.
	if def.SideEffect && !tenant.HasRequiredRole(ctx.Role, tenant.RoleMember) {
		return nil, errs.New(errs.KindForbidden, "caller's role is below the required member role", errs.SeverityError, now)
	}

	// 5. Budget reservation.
	estimate := def.Cost.Estimate
	if estimate == 0 {
		estimate = def.Cost.CostCents
	}
	budgeted := def.TenantScoped && estimate > 0
	if budgeted {
		if _, _, err := g.Accountant.Reserve(ctx.TenantID, estimate); err != nil {
			return nil, err
		}
	}

	// 6. Input validation.
	if err := validateAgainstSchema(name+".input", def.InputSchema, input); err != nil {
		if budgeted {
			_, _ = g.Accountant.Reconcile(ctx.TenantID, estimate, 0)
		}
		return nil, errs.New(errs.KindValidationFailed, "input does not match tool schema", errs.SeverityError, now).WithCause(err)
	}

	// 7. Handler execution.
	callStart := g.Clock.Now()
	childCtx := &CallContext{Context: parent, Invocation: ctx.WithIncrementedDepth()}
	output, handlerErr := def.Handler(childCtx, input)
	latencyMs := g.Clock.Elapsed(callStart).Milliseconds()

	if handlerErr != nil {
		if budgeted {
			_, _ = g.Accountant.Reconcile(ctx.TenantID, estimate, latencyMs/100+1)
		}
		return nil, errs.FromUnknown(handlerErr, g.Clock.NowISO())
	}

	// 8. Output size check. Truncate succeeds for strings, byte buffers,
	// arrays, and objects; anything else over the limit (a bare number,
	// bool, or other unshrinkable type) comes back with ok=false and
	// fails outright, per the two outcomes the budget spec allows here.
	if g.Limiter != nil {
		if size, over := g.Limiter.Check(output); over {
			truncated, didTruncate := g.Limiter.Truncate(output)
			if !didTruncate {
				return nil, errs.New(errs.KindToolOutputTooLarge, fmt.Sprintf("output size %d bytes exceeds limit", size), errs.SeverityError, g.Clock.NowISO())
			}
			output = truncated
		}
	}

	// 9. Output validation.
	if err := validateAgainstSchema(name+".output", def.OutputSchema, output); err != nil {
		return nil, errs.New(errs.KindInternalError, "tool output violates its declared schema", errs.SeverityCritical, g.Clock.NowISO()).WithCause(err)
	}

	// 10. Budget reconciliation.
	actualCost := latencyMs/100 + 1
	if budgeted {
		if _, err := g.Accountant.Reconcile(ctx.TenantID, estimate, actualCost); err != nil {
			return nil, err
		}
	}

	// 11. Persist envelope.
	inputFingerprint, err := digest.CanonicalHash(input)
	if err != nil {
		return nil, errs.New(errs.KindInternalError, "failed to fingerprint input", errs.SeverityCritical, g.Clock.NowISO()).WithCause(err)
	}
	outputDigest, err := digest.CanonicalHash(output)
	if err != nil {
		return nil, errs.New(errs.KindInternalError, "failed to digest output", errs.SeverityCritical, g.Clock.NowISO()).WithCause(err)
	}

	policySnapshotHash := ""
	if g.PolicySnapshotHash != nil {
		policySnapshotHash, err = g.PolicySnapshotHash()
		if err != nil {
			return nil, errs.New(errs.KindInternalError, "failed to capture policy snapshot hash", errs.SeverityCritical, g.Clock.NowISO()).WithCause(err)
		}
	}

	if g.Ledger != nil {
		_, err = g.Ledger.WriteLedgerEntry(ctx.TenantID, "tool_invoked", fmt.Sprintf("%s@%s invoked", name, def.Version), map[string]interface{}{
			"requestId":          ctx.RequestID,
			"inputFingerprint":   inputFingerprint,
			"outputDigest":       outputDigest,
			"policySnapshotHash": policySnapshotHash,
		})
		if err != nil {
			return nil, err
		}
		g.Ledger.RecordExecutionCost(ctx.TenantID, ctx.RequestID, latencyMs)
	}

	envelope := map[string]interface{}{
		"createdAt":          g.Clock.NowISO(),
		"deterministic":      def.Deterministic,
		"duration_ms":        latencyMs,
		"from_cache":         false,
		"inputFingerprint":   inputFingerprint,
		"outputDigest":       outputDigest,
		"policySnapshotHash": policySnapshotHash,
		"requestId":          ctx.RequestID,
		"tenantId":           ctx.TenantID,
		"toolName":           name,
		"toolVersion":        def.Version,
	}
	hash, err := digest.CanonicalHash(envelope)
	if err != nil {
		return nil, errs.New(errs.KindInternalError, "failed to hash replay envelope", errs.SeverityCritical, g.Clock.NowISO()).WithCause(err)
	}

	return &CallResult{
		Result:        output,
		Hash:          hash,
		DurationMS:    latencyMs,
		FromCache:     false,
		Deterministic: def.Deterministic,
	}, nil
}
