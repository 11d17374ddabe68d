package divergence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/divergence"
	"github.com/requiem-run/requiem-core/pkg/errs"
)

func TestSentinel_HasFalseBeforeAnyRecord(t *testing.T) {
	s := divergence.NewSentinel(clock.NewFrozenClock(time.Now()))
	require.False(t, s.Has("run-1"))
}

func TestSentinel_RecordMarksRunDivergent(t *testing.T) {
	s := divergence.NewSentinel(clock.NewFrozenClock(time.Now()))

	err := s.Record(divergence.Event{
		RunID:               "run-1",
		Type:                divergence.EventPolicyDrift,
		ExpectedFingerprint: "aaaaaaaaaaaaaaaaaaaaaaaa",
		ActualFingerprint:   "bbbbbbbbbbbbbbbbbbbbbbbb",
		StepNumber:          3,
		Severity:            errs.SeverityCritical,
	})
	require.NoError(t, err)
	require.True(t, s.Has("run-1"))

	status := s.Status("run-1")
	require.True(t, status.IsDivergent)
	require.Equal(t, errs.SeverityCritical, status.Severity)
	require.Len(t, status.Events, 1)
}

func TestSentinel_StatusSeverityEscalatesToCritical(t *testing.T) {
	s := divergence.NewSentinel(clock.NewFrozenClock(time.Now()))

	require.NoError(t, s.Record(divergence.Event{RunID: "run-1", Severity: errs.SeverityWarning}))
	require.NoError(t, s.Record(divergence.Event{RunID: "run-1", Severity: errs.SeverityCritical}))

	status := s.Status("run-1")
	require.Equal(t, errs.SeverityCritical, status.Severity)
	require.Len(t, status.Events, 2)
}

func TestSentinel_EventsAreIsolatedPerRun(t *testing.T) {
	s := divergence.NewSentinel(clock.NewFrozenClock(time.Now()))

	require.NoError(t, s.Record(divergence.Event{RunID: "run-1"}))
	require.False(t, s.Has("run-2"))
}

func TestSentinel_RecordAssignsIDAndTimestampWhenAbsent(t *testing.T) {
	s := divergence.NewSentinel(clock.NewFrozenClock(time.Now()))
	require.NoError(t, s.Record(divergence.Event{RunID: "run-1"}))

	status := s.Status("run-1")
	require.NotEmpty(t, status.Events[0].ID)
	require.NotEmpty(t, status.Events[0].DetectedAt)
}
