// Package lifecycle wraps the generic statemachine kernel into the
// 8-state monotonic run pipeline and the two specialised machines
// (execution, junction) built on the same kernel.
package lifecycle

import (
	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/statemachine"
)

// RunState is the run lifecycle's state type.
type RunState string

const (
	Init            RunState = "INIT"
	PolicyChecked   RunState = "POLICY_CHECKED"
	Arbitrated      RunState = "ARBITRATED"
	Executed        RunState = "EXECUTED"
	ManifestBuilt   RunState = "MANIFEST_BUILT"
	Signed          RunState = "SIGNED"
	LedgerCommitted RunState = "LEDGER_COMMITTED"
	Complete        RunState = "COMPLETE"
	Divergent       RunState = "DIVERGENT"
)

// pipelineOrder is the strict, immediate-successor-only sequence.
var pipelineOrder = []RunState{
	Init, PolicyChecked, Arbitrated, Executed, ManifestBuilt, Signed, LedgerCommitted, Complete,
}

// RunDefinition builds the 8-step monotonic pipeline definition with
// DIVERGENT reachable as an extra edge from every non-terminal state,
// rather than as a special case inside Advance.
func RunDefinition() statemachine.Definition[RunState] {
	transitions := make(map[RunState][]RunState, len(pipelineOrder))
	for i, s := range pipelineOrder {
		if i+1 < len(pipelineOrder) {
			transitions[s] = []RunState{pipelineOrder[i+1], Divergent}
		}
	}

	return statemachine.Definition[RunState]{
		Transitions: transitions,
		Terminal:    map[RunState]bool{Complete: true, Divergent: true},
	}
}

// Tracker wraps a run's Instance, starting at Init.
type Tracker struct {
	*statemachine.Instance[RunState]
}

// NewTracker creates a Tracker for a fresh run.
func NewTracker(c clock.Clock) *Tracker {
	return &Tracker{Instance: statemachine.New(RunDefinition(), Init, c)}
}

// ExecutionState is the state type for the execution machine (§4.4).
type ExecutionState string

const (
	ExecPending   ExecutionState = "pending"
	ExecQueued    ExecutionState = "queued"
	ExecRunning   ExecutionState = "running"
	ExecSucceeded ExecutionState = "succeeded"
	ExecFailed    ExecutionState = "failed"
	ExecTimeout   ExecutionState = "timeout"
	ExecPaused    ExecutionState = "paused"
	ExecCancelled ExecutionState = "cancelled"
)

// ExecutionDefinition builds the execution machine:
// pending → {queued, cancelled}; queued → {running, cancelled};
// running → {succeeded, failed, timeout, paused, cancelled};
// paused → {running, cancelled};
// failed/timeout → queued (retry); succeeded/cancelled terminal.
func ExecutionDefinition() statemachine.Definition[ExecutionState] {
	return statemachine.Definition[ExecutionState]{
		Transitions: map[ExecutionState][]ExecutionState{
			ExecPending: {ExecQueued, ExecCancelled},
			ExecQueued:  {ExecRunning, ExecCancelled},
			ExecRunning: {ExecSucceeded, ExecFailed, ExecTimeout, ExecPaused, ExecCancelled},
			ExecFailed:  {ExecQueued},
			ExecTimeout: {ExecQueued},
			ExecPaused:  {ExecRunning, ExecCancelled},
		},
		Terminal: map[ExecutionState]bool{ExecSucceeded: true, ExecCancelled: true},
	}
}

// NewExecutionMachine creates an Instance of the execution machine
// starting at pending.
func NewExecutionMachine(c clock.Clock) *statemachine.Instance[ExecutionState] {
	return statemachine.New(ExecutionDefinition(), ExecPending, c)
}

// JunctionState is the state type for the junction machine (§4.4).
type JunctionState string

const (
	JunctionDetected         JunctionState = "detected"
	JunctionValidating       JunctionState = "validating"
	JunctionExpired          JunctionState = "expired"
	JunctionAwaitingDecision JunctionState = "awaiting_decision"
	JunctionBlocked          JunctionState = "blocked"
	JunctionExecuting        JunctionState = "executing"
	JunctionResolved         JunctionState = "resolved"
	JunctionFailed           JunctionState = "failed"
)

// JunctionDefinition builds the junction machine:
// detected → {validating, expired}; validating → {awaiting_decision,
// blocked, expired}; awaiting_decision → {executing, expired, blocked};
// executing → {resolved, failed}; resolved/expired terminal.
func JunctionDefinition() statemachine.Definition[JunctionState] {
	return statemachine.Definition[JunctionState]{
		Transitions: map[JunctionState][]JunctionState{
			JunctionDetected:         {JunctionValidating, JunctionExpired},
			JunctionValidating:       {JunctionAwaitingDecision, JunctionBlocked, JunctionExpired},
			JunctionAwaitingDecision: {JunctionExecuting, JunctionExpired, JunctionBlocked},
			JunctionExecuting:        {JunctionResolved, JunctionFailed},
		},
		Terminal: map[JunctionState]bool{JunctionResolved: true, JunctionExpired: true},
	}
}

// NewJunctionMachine creates an Instance of the junction machine
// starting at detected.
func NewJunctionMachine(c clock.Clock) *statemachine.Instance[JunctionState] {
	return statemachine.New(JunctionDefinition(), JunctionDetected, c)
}
