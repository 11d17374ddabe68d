// Package policy implements the append-only execution ledger and the
// active-policy-snapshot hash that every persisted tool invocation is
// stamped with.
package policy

import (
	"sync"

	"github.com/google/uuid"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/digest"
	"github.com/requiem-run/requiem-core/pkg/errs"
)

// LedgerEntry is a single, never-updated, never-deleted ledger row.
type LedgerEntry struct {
	ID          string                 `json:"id"`
	TenantID    string                 `json:"tenantId"`
	Timestamp   string                 `json:"timestamp"`
	EventType   string                 `json:"eventType"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ContentHash string                 `json:"contentHash"`
	PrevHash    string                 `json:"prevHash"`
}

// EconomicEventType enumerates the kinds of costed resource usage a run
// can record.
type EconomicEventType string

const (
	EconomicEventExecution     EconomicEventType = "execution"
	EconomicEventReplayStorage EconomicEventType = "replay_storage"
	EconomicEventPolicyEval    EconomicEventType = "policy_eval"
	EconomicEventDriftAnalysis EconomicEventType = "drift_analysis"
)

// EconomicEvent records deterministically-derived resource usage.
type EconomicEvent struct {
	TenantID      string            `json:"tenantId"`
	RunID         string            `json:"runId"`
	EventType     EconomicEventType `json:"eventType"`
	ResourceUnits int64             `json:"resourceUnits"`
	CostUnits     int64             `json:"costUnits"`
	CreatedAt     string            `json:"createdAt"`
}

// Ledger is an append-only, hash-chained log of LedgerEntry rows. Each
// entry's ContentHash folds in the previous entry's hash, so the whole
// chain can be verified end to end; the spec only requires append-only
// and immutable, chaining is strictly stronger and costs nothing extra.
type Ledger struct {
	mu       sync.RWMutex
	entries  []LedgerEntry
	events   []EconomicEvent
	headHash string
	clock    clock.Clock
}

func NewLedger(c clock.Clock) *Ledger {
	return &Ledger{
		entries:  make([]LedgerEntry, 0),
		events:   make([]EconomicEvent, 0),
		headHash: "genesis",
		clock:    c,
	}
}

// WriteLedgerEntry appends a new entry synchronously. metadata is
// sanitized before storage since it may echo tool input/output.
func (l *Ledger) WriteLedgerEntry(tenantID, eventType, description string, metadata map[string]interface{}) (LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sanitized := errs.Sanitize(metadata)

	hashInput := map[string]interface{}{
		"tenantId":    tenantID,
		"eventType":   eventType,
		"description": description,
		"metadata":    sanitized,
		"prevHash":    l.headHash,
	}
	contentHash, err := digest.CanonicalHash(hashInput)
	if err != nil {
		return LedgerEntry{}, errs.New(errs.KindInternalError, "failed to hash ledger entry", errs.SeverityCritical, l.clock.NowISO()).WithCause(err)
	}

	entry := LedgerEntry{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Timestamp:   l.clock.NowISO(),
		EventType:   eventType,
		Description: description,
		Metadata:    sanitized,
		ContentHash: contentHash,
		PrevHash:    l.headHash,
	}

	l.entries = append(l.entries, entry)
	l.headHash = contentHash
	return entry, nil
}

// RecordExecutionCost writes an execution EconomicEvent with
// costUnits = max(1, ceil(latencyMs/100)).
func (l *Ledger) RecordExecutionCost(tenantID, runID string, latencyMs int64) EconomicEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	costUnits := (latencyMs + 99) / 100
	if costUnits < 1 {
		costUnits = 1
	}

	event := EconomicEvent{
		TenantID:      tenantID,
		RunID:         runID,
		EventType:     EconomicEventExecution,
		ResourceUnits: latencyMs,
		CostUnits:     costUnits,
		CreatedAt:     l.clock.NowISO(),
	}
	l.events = append(l.events, event)
	return event
}

// Entries returns a defensive copy of all recorded entries.
func (l *Ledger) Entries() []LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Events returns a defensive copy of all recorded economic events.
func (l *Ledger) Events() []EconomicEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]EconomicEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Head returns the current chain head hash.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Verify recomputes the chain from genesis and confirms every entry's
// ContentHash and PrevHash still line up.
func (l *Ledger) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := "genesis"
	for _, entry := range l.entries {
		if entry.PrevHash != prevHash {
			return false, "chain broken: unexpected prevHash at entry " + entry.ID
		}

		hashInput := map[string]interface{}{
			"tenantId":    entry.TenantID,
			"eventType":   entry.EventType,
			"description": entry.Description,
			"metadata":    entry.Metadata,
			"prevHash":    entry.PrevHash,
		}
		computed, err := digest.CanonicalHash(hashInput)
		if err != nil || computed != entry.ContentHash {
			return false, "hash mismatch at entry " + entry.ID
		}
		prevHash = entry.ContentHash
	}
	return true, "chain verified"
}
