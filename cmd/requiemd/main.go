package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/requiem-run/requiem-core/pkg/budget"
	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/config"
	"github.com/requiem-run/requiem-core/pkg/divergence"
	"github.com/requiem-run/requiem-core/pkg/errs"
	"github.com/requiem-run/requiem-core/pkg/observability"
	"github.com/requiem-run/requiem-core/pkg/outputlimit"
	"github.com/requiem-run/requiem-core/pkg/policy"
	"github.com/requiem-run/requiem-core/pkg/rpc"
	"github.com/requiem-run/requiem-core/pkg/skill"
	"github.com/requiem-run/requiem-core/pkg/tenant"
	"github.com/requiem-run/requiem-core/pkg/toolreg"
)

// Exit codes per the core's external interface: 0 success, 2 user/input
// error, 3 invariant or determinism violation, 4 system error.
const (
	exitSuccess       = 0
	exitUserError     = 2
	exitIntegrityFail = 3
	exitSystemError   = 4
)

func main() {
	os.Exit(Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing: it never calls os.Exit itself.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(stdin, stdout, stderr)
	}

	switch args[1] {
	case "serve", "rpc":
		return runServe(stdin, stdout, stderr)
	case "skill":
		return runSkillCmd(args[2:], stdin, stdout, stderr)
	case "health":
		fmt.Fprintln(stdout, "OK")
		return exitSuccess
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitSuccess
	default:
		fmt.Fprintf(stderr, "requiemd: unknown command %q\n", args[1])
		printUsage(stderr)
		return exitUserError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "requiemd - deterministic AI tool execution runtime")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  requiemd [serve|rpc]            run the stdio JSON-RPC server (default)")
	fmt.Fprintln(w, "  requiemd skill <name> <version> run one skill, reading its argument as JSON on stdin")
	fmt.Fprintln(w, "  requiemd health                 print OK and exit 0")
	fmt.Fprintln(w, "  requiemd help                   show this message")
}

// kernel is every long-lived, shared component the daemon wires at
// startup. One kernel serves every connection and every skill run in
// the process.
type kernel struct {
	clock         clock.Clock
	cfg           config.Config
	toolRegistry  toolreg.Registry
	gate          *toolreg.Gate
	ledger        *policy.Ledger
	sentinel      *divergence.Sentinel
	skillRegistry skill.Registry
	skillRunner   *skill.Runner
	observability *observability.Provider
	invocation    tenant.InvocationContext
}

func buildKernel(ctx context.Context, cfg config.Config, invocation tenant.InvocationContext) (*kernel, error) {
	c := clock.NewSystemClock()

	obs, err := observability.New(ctx, observability.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("requiemd: observability init: %w", err)
	}

	toolRegistry := toolreg.NewInMemoryRegistry(c)
	ledger := policy.NewLedger(c)
	sentinel := divergence.NewSentinel(c)

	limit := budget.Limit{MaxCostUnits: 100_000, WindowSeconds: 60}
	if cfg.Enterprise {
		limit = budget.Limit{MaxCostUnits: config.EnterpriseBudgetLimit(), WindowSeconds: 60}
	}
	accountant := budget.NewAccountant(budget.NewMemoryStorage(), func(string) budget.Limit { return limit }, c)

	gate := &toolreg.Gate{
		Registry:   toolRegistry,
		Accountant: accountant,
		Limiter:    outputlimit.New(cfg.ToolOutputMaxBytes),
		Ledger:     ledger,
		Clock:      c,
		PolicySnapshotHash: func() (string, error) {
			return "unversioned", nil
		},
	}

	callTool := func(name, version string, input interface{}, ctx tenant.InvocationContext) (interface{}, error) {
		result, err := gate.Call(context.Background(), name, version, input, ctx)
		if err != nil {
			return nil, err
		}
		return result.Result, nil
	}
	generateText := func(prompt, model string) (string, error) {
		return "", errs.New(errs.KindProviderNotConfigured, "no LLM provider configured for this daemon", errs.SeverityWarning, c.NowISO())
	}

	runner, err := skill.NewRunner(callTool, generateText, c)
	if err != nil {
		return nil, fmt.Errorf("requiemd: skill runner init: %w", err)
	}

	return &kernel{
		clock:         c,
		cfg:           cfg,
		toolRegistry:  toolRegistry,
		gate:          gate,
		ledger:        ledger,
		sentinel:      sentinel,
		skillRegistry: skill.NewInMemoryRegistry(c),
		skillRunner:   runner,
		observability: obs,
		invocation:    invocation,
	}, nil
}

func resolveInvocation(c clock.Clock, cfg config.Config) (tenant.InvocationContext, error) {
	store := newStaticKeyStore(cfg.APIKey, cfg.TenantID, tenant.RoleAdmin)
	resolver := tenant.NewCLIResolver(store, c, tenant.EnvironmentProduction)
	invocation, err := resolver.FromCLI()
	if err != nil {
		return tenant.InvocationContext{}, err
	}
	return *invocation, nil
}

func runServe(stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	c := clock.NewSystemClock()

	invocation, err := resolveInvocation(c, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "requiemd: %v\n", err)
		return exitCodeFor(err)
	}

	k, err := buildKernel(ctx, cfg, invocation)
	if err != nil {
		fmt.Fprintf(stderr, "requiemd: %v\n", err)
		return exitSystemError
	}
	defer func() { _ = k.observability.Shutdown(context.Background()) }()

	server := rpc.NewServer(k.toolRegistry, k.gate, k.ledger, k.clock, k.invocation, stdin, stdout, stderr, 50, 10)
	server.Observability = k.observability

	slog.Default().InfoContext(ctx, "requiemd: stdio RPC server starting", "tenant", invocation.TenantID)

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(stderr, "requiemd: server error: %v\n", err)
		return exitSystemError
	}
	return exitSuccess
}

// runSkillCmd runs exactly one registered skill against a JSON argument
// read from stdin, writing its Result as JSON to stdout. This is the
// only surface that exercises the skill runner: spec.md's JSON-RPC
// methods cover tools/list and tools/call only, never skills/run.
func runSkillCmd(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "usage: requiemd skill <name> <version>")
		return exitUserError
	}
	name, version := args[0], args[1]

	cfg := config.Load()
	c := clock.NewSystemClock()

	invocation, err := resolveInvocation(c, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "requiemd: %v\n", err)
		return exitCodeFor(err)
	}

	k, err := buildKernel(context.Background(), cfg, invocation)
	if err != nil {
		fmt.Fprintf(stderr, "requiemd: %v\n", err)
		return exitSystemError
	}
	defer func() { _ = k.observability.Shutdown(context.Background()) }()

	def, err := k.skillRegistry.Resolve(name, version)
	if err != nil {
		fmt.Fprintf(stderr, "requiemd: %v\n", err)
		return exitCodeFor(err)
	}

	var arg interface{}
	if err := json.NewDecoder(stdin).Decode(&arg); err != nil && err != io.EOF {
		fmt.Fprintf(stderr, "requiemd: invalid JSON argument: %v\n", err)
		return exitUserError
	}

	result, err := k.skillRunner.Run(def, invocation, arg)
	if err != nil {
		fmt.Fprintf(stderr, "requiemd: skill %s@%s failed: %v\n", name, version, err)
		if result != nil {
			_ = json.NewEncoder(stdout).Encode(result)
		}
		return exitCodeFor(err)
	}

	if err := json.NewEncoder(stdout).Encode(result); err != nil {
		fmt.Fprintf(stderr, "requiemd: failed to encode result: %v\n", err)
		return exitSystemError
	}
	return exitSuccess
}

// exitCodeFor maps a tagged envelope's Kind onto the external exit-code
// contract; an error that is not one of ours is always a system error.
func exitCodeFor(err error) int {
	env, ok := err.(*errs.Envelope)
	if !ok {
		return exitSystemError
	}

	switch env.Code {
	case errs.KindValidationFailed, errs.KindSchemaMismatch, errs.KindUnauthorized,
		errs.KindForbidden, errs.KindMembershipRequired, errs.KindTenantAccessDenied,
		errs.KindBudgetExceeded, errs.KindToolOutputTooLarge, errs.KindTriggerDataTooLarge,
		errs.KindSkillAlreadyRegistered, errs.KindFileNotFound:
		return exitUserError
	case errs.KindInvariantViolation, errs.KindDeterminismViolation, errs.KindHashMismatch,
		errs.KindCASIntegrityFailed, errs.KindReplayMismatch:
		return exitIntegrityFail
	default:
		return exitSystemError
	}
}
