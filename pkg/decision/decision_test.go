package decision_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/decision"
)

func frozenClock() clock.Clock {
	return clock.NewFrozenClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func s5Input() decision.Input {
	return decision.Input{
		Actions:   []string{"a", "b", "c"},
		States:    []string{"s1", "s2"},
		Algorithm: decision.AlgorithmMinimaxRegret,
		Outcomes: map[string]map[string]float64{
			"a": {"s1": 1, "s2": 0.5},
			"b": {"s1": 0.5, "s2": 1},
			"c": {"s1": 0.7, "s2": 0.7},
		},
	}
}

func TestEvaluate_MinimaxRegretMatchesScenario(t *testing.T) {
	out, err := decision.Evaluate(s5Input(), frozenClock())
	require.NoError(t, err)

	require.Equal(t, "c", out.RecommendedAction)
	require.Equal(t, []string{"c", "a", "b"}, out.Ranking)
	require.InDelta(t, 0.5, out.Scores["a"], 1e-9)
	require.InDelta(t, 0.5, out.Scores["b"], 1e-9)
	require.InDelta(t, 0.3, out.Scores["c"], 1e-9)
}

func TestEvaluate_DeterministicAcrossTenRuns(t *testing.T) {
	var first decision.Output
	for i := 0; i < 10; i++ {
		out, err := decision.Evaluate(s5Input(), frozenClock())
		require.NoError(t, err)
		if i == 0 {
			first = out
			continue
		}
		require.Equal(t, first.Ranking, out.Ranking)
		require.Equal(t, first.Scores, out.Scores)
		require.Equal(t, first.Trace, out.Trace)
	}
}

func TestEvaluate_MaximinRanksDescendingByWorstCase(t *testing.T) {
	input := s5Input()
	input.Algorithm = decision.AlgorithmMaximin

	out, err := decision.Evaluate(input, frozenClock())
	require.NoError(t, err)

	require.InDelta(t, 0.5, out.Scores["a"], 1e-9)
	require.InDelta(t, 0.5, out.Scores["b"], 1e-9)
	require.InDelta(t, 0.7, out.Scores["c"], 1e-9)
	require.Equal(t, "c", out.RecommendedAction)
}

func TestEvaluate_WeightedSumUniformIsLaplace(t *testing.T) {
	input := s5Input()
	input.Algorithm = decision.AlgorithmWeightedSum

	out, err := decision.Evaluate(input, frozenClock())
	require.NoError(t, err)

	require.InDelta(t, 0.75, out.Scores["a"], 1e-9)
	require.InDelta(t, 0.75, out.Scores["b"], 1e-9)
	require.InDelta(t, 0.7, out.Scores["c"], 1e-9)
}

func TestEvaluate_RejectsNonFiniteOutcome(t *testing.T) {
	input := s5Input()
	input.Outcomes["a"]["s1"] = math.Inf(1)

	_, err := decision.Evaluate(input, frozenClock())
	require.Error(t, err)
}

func TestEvaluate_StrictModeRejectsWeightsNotSummingToOne(t *testing.T) {
	input := s5Input()
	input.Algorithm = decision.AlgorithmWeightedSum
	input.Strict = true
	input.Weights = map[string]float64{"s1": 0.6, "s2": 0.6}

	_, err := decision.Evaluate(input, frozenClock())
	require.Error(t, err)
}

func TestEvaluate_NonStrictModeRenormalizesWeights(t *testing.T) {
	input := s5Input()
	input.Algorithm = decision.AlgorithmWeightedSum
	input.Weights = map[string]float64{"s1": 2, "s2": 2}

	out, err := decision.Evaluate(input, frozenClock())
	require.NoError(t, err)
	require.InDelta(t, 0.75, out.Scores["a"], 1e-9)
}

func TestEvaluate_ParetoCountsWeakDominance(t *testing.T) {
	input := s5Input()
	input.Algorithm = decision.AlgorithmPareto

	out, err := decision.Evaluate(input, frozenClock())
	require.NoError(t, err)
	require.InDelta(t, 1, out.Scores["a"], 1e-9)
	require.InDelta(t, 1, out.Scores["b"], 1e-9)
	require.InDelta(t, 0, out.Scores["c"], 1e-9)
}

func TestEvaluate_TopsisProducesBoundedScores(t *testing.T) {
	input := s5Input()
	input.Algorithm = decision.AlgorithmTopsis

	out, err := decision.Evaluate(input, frozenClock())
	require.NoError(t, err)
	for _, a := range input.Actions {
		require.GreaterOrEqual(t, out.Scores[a], 0.0)
		require.LessOrEqual(t, out.Scores[a], 1.0)
	}
}

func TestEvaluate_UnknownAlgorithmFails(t *testing.T) {
	input := s5Input()
	input.Algorithm = "not_a_real_algorithm"

	_, err := decision.Evaluate(input, frozenClock())
	require.Error(t, err)
}
