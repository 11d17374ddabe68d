package statemachine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
	"github.com/requiem-run/requiem-core/pkg/statemachine"
)

type trafficLight string

const (
	red    trafficLight = "red"
	green  trafficLight = "green"
	yellow trafficLight = "yellow"
	broken trafficLight = "broken"
)

func trafficDef() statemachine.Definition[trafficLight] {
	return statemachine.Definition[trafficLight]{
		Transitions: map[trafficLight][]trafficLight{
			red:    {green},
			green:  {yellow},
			yellow: {red, broken},
		},
		Terminal: map[trafficLight]bool{broken: true},
	}
}

func TestAdvance_LegalTransition(t *testing.T) {
	c := clock.NewSeededClock(time.Now(), time.Millisecond)
	inst := statemachine.New(trafficDef(), red, c)

	require.NoError(t, inst.Advance(green))
	require.Equal(t, green, inst.Current())
	require.Len(t, inst.History(), 1)
}

func TestAdvance_IllegalTransitionRejected(t *testing.T) {
	c := clock.NewSeededClock(time.Now(), time.Millisecond)
	inst := statemachine.New(trafficDef(), red, c)

	err := inst.Advance(yellow)
	require.Error(t, err)
	env := err.(*errs.Envelope)
	require.Equal(t, errs.KindInvariantViolation, env.Code)
	require.Equal(t, errs.SeverityCritical, env.Severity)
	require.Equal(t, red, inst.Current())
}

func TestAdvance_TerminalStateRefusesFurtherMutation(t *testing.T) {
	c := clock.NewSeededClock(time.Now(), time.Millisecond)
	inst := statemachine.New(trafficDef(), yellow, c)

	require.NoError(t, inst.Advance(broken))
	err := inst.Advance(red)
	require.Error(t, err)
}

func TestHistory_RecordsEveryTransition(t *testing.T) {
	c := clock.NewSeededClock(time.Now(), time.Millisecond)
	inst := statemachine.New(trafficDef(), red, c)

	require.NoError(t, inst.Advance(green))
	require.NoError(t, inst.Advance(yellow))
	require.NoError(t, inst.Advance(red))

	hist := inst.History()
	require.Len(t, hist, 3)
	require.Equal(t, red, hist[0].From)
	require.Equal(t, green, hist[0].To)
}
