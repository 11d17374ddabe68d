// Package statemachine implements a generic, validated transition kernel.
// Two concrete machines (execution, junction) are generated from it in
// package lifecycle.
package statemachine

import (
	"sync"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
)

// Definition describes the legal transition graph for a state type S.
type Definition[S comparable] struct {
	Transitions map[S][]S
	Terminal    map[S]bool
}

func (d Definition[S]) allows(from, to S) bool {
	for _, candidate := range d.Transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Transition records a single validated move.
type Transition[S comparable] struct {
	From      S
	To        S
	Timestamp string
}

// Instance is a running state machine bound to a Definition.
type Instance[S comparable] struct {
	mu      sync.RWMutex
	def     Definition[S]
	clock   clock.Clock
	current S
	history []Transition[S]
}

// New creates an Instance starting at initial.
func New[S comparable](def Definition[S], initial S, c clock.Clock) *Instance[S] {
	return &Instance[S]{def: def, clock: c, current: initial}
}

// Current returns the machine's current state.
func (i *Instance[S]) Current() S {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.current
}

// History returns a copy of every transition recorded so far.
func (i *Instance[S]) History() []Transition[S] {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Transition[S], len(i.history))
	copy(out, i.history)
	return out
}

// Advance validates and applies a transition to `to`. Only a target the
// Definition lists for the current state is legal; an illegal move
// (including any move attempted from a terminal state) raises
// INVARIANT_VIOLATION at critical severity.
func (i *Instance[S]) Advance(to S) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.clock.NowISO()

	if i.def.Terminal[i.current] {
		return errs.New(errs.KindInvariantViolation, "cannot transition out of a terminal state", errs.SeverityCritical, now)
	}
	if !i.def.allows(i.current, to) {
		return errs.New(errs.KindInvariantViolation, "illegal state transition attempted", errs.SeverityCritical, now)
	}

	i.history = append(i.history, Transition[S]{From: i.current, To: to, Timestamp: now})
	i.current = to
	return nil
}
