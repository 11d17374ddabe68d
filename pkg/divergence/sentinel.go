// Package divergence implements the Divergence Sentinel: the
// unsilenceable detector that fires whenever a replayed execution
// disagrees with its recorded evidence trail.
package divergence

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
)

// EventType classifies the kind of disagreement detected.
type EventType string

const (
	EventFingerprintMismatch EventType = "fingerprint_mismatch"
	EventReplayMismatch      EventType = "replay_mismatch"
	EventPolicyDrift         EventType = "policy_drift"
	EventOutputDrift         EventType = "output_drift"
)

// Event is a single recorded divergence. Once stored it is visible on
// every future report of the run; there is no delete or update.
type Event struct {
	ID                  string
	RunID               string
	DetectedAt          string
	Type                EventType
	ExpectedFingerprint string
	ActualFingerprint   string
	StepNumber          int
	Severity            errs.Severity
	Acknowledged        bool
}

// Status summarizes a run's divergence state.
type Status struct {
	IsDivergent bool
	Severity    errs.Severity
	Events      []Event
}

// Sentinel records divergence events. Nothing in this package exposes a
// way to disable the logging side effect or to acknowledge an event;
// acknowledgment is deliberately out of core, left to operator tooling.
type Sentinel struct {
	mu     sync.RWMutex
	byRun  map[string][]Event
	clock  clock.Clock
	logger *slog.Logger
}

func NewSentinel(c clock.Clock) *Sentinel {
	return &Sentinel{
		byRun:  make(map[string][]Event),
		clock:  c,
		logger: slog.Default(),
	}
}

// Record stores event, unconditionally logging at error level and
// writing an unconditional stderr warning carrying the first 16 chars
// of the expected/actual fingerprints and the step number.
func (s *Sentinel) Record(event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.DetectedAt == "" {
		event.DetectedAt = s.clock.NowISO()
	}

	s.mu.Lock()
	s.byRun[event.RunID] = append(s.byRun[event.RunID], event)
	s.mu.Unlock()

	expectedShort := shortFingerprint(event.ExpectedFingerprint)
	actualShort := shortFingerprint(event.ActualFingerprint)

	s.logger.Error("divergence detected",
		"runId", event.RunID,
		"type", string(event.Type),
		"severity", string(event.Severity),
		"expected", expectedShort,
		"actual", actualShort,
		"step", event.StepNumber,
	)

	fmt.Fprintln(os.Stderr, fmt.Sprintf(
		"DIVERGENCE run=%s type=%s step=%d expected=%s actual=%s",
		event.RunID, event.Type, event.StepNumber, expectedShort, actualShort,
	))

	return nil
}

// shortFingerprint truncates an already-hashed fingerprint to its first
// 16 chars, matching digest.HashShort's convention without re-hashing.
func shortFingerprint(fp string) string {
	if len(fp) <= 16 {
		return fp
	}
	return fp[:16]
}

// Has reports whether any divergence event has been recorded for runID.
func (s *Sentinel) Has(runID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byRun[runID]) > 0
}

// Status reports the aggregate divergence state for a run. Severity is
// the highest-severity event recorded (critical dominates warning).
func (s *Sentinel) Status(runID string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byRun[runID]
	if len(events) == 0 {
		return Status{IsDivergent: false}
	}

	out := make([]Event, len(events))
	copy(out, events)

	severity := errs.SeverityWarning
	for _, e := range events {
		if e.Severity == errs.SeverityCritical {
			severity = errs.SeverityCritical
			break
		}
	}

	return Status{IsDivergent: true, Severity: severity, Events: out}
}
