// Package decision implements the Decision Evaluator: nine classical
// decision-theory algorithms over an actions x states outcome matrix,
// each a pure, deterministic scoring function with a stable tie-break.
package decision

import (
	"math"
	"sort"

	"github.com/requiem-run/requiem-core/pkg/clock"
	"github.com/requiem-run/requiem-core/pkg/errs"
)

// Algorithm names the scoring method to apply.
type Algorithm string

const (
	AlgorithmMinimaxRegret        Algorithm = "minimax_regret"
	AlgorithmMaximin              Algorithm = "maximin"
	AlgorithmWeightedSum          Algorithm = "weighted_sum"
	AlgorithmSoftmax              Algorithm = "softmax"
	AlgorithmHurwicz              Algorithm = "hurwicz"
	AlgorithmHodgesLehmann        Algorithm = "hodges_lehmann"
	AlgorithmPareto               Algorithm = "pareto"
	AlgorithmEpsilonContamination Algorithm = "epsilon_contamination"
	AlgorithmTopsis               Algorithm = "topsis"
)

const (
	defaultTemperature = 1.0
	defaultOptimism    = 0.5
	defaultEpsilon     = 0.1
	weightTolerance    = 1e-9
)

// Input is the Decision Evaluator's request payload.
type Input struct {
	Actions     []string
	States      []string
	Outcomes    map[string]map[string]float64
	Algorithm   Algorithm
	Weights     map[string]float64
	Strict      bool
	Temperature float64
	Optimism    float64
	Epsilon     float64
}

// Trace records how an evaluation's scores were produced.
type Trace struct {
	Algorithm        Algorithm
	ComputedAt       string
	Scores           map[string]float64
	ProcessingTimeMs int64
}

// Output is the Decision Evaluator's response.
type Output struct {
	RecommendedAction string
	Ranking           []string
	Scores            map[string]float64
	Trace             Trace
}

// Evaluate scores Actions under Algorithm and returns them ranked. Equal
// scores preserve the order Actions were given in.
func Evaluate(input Input, c clock.Clock) (Output, error) {
	start := c.Now()
	now := c.NowISO()

	if err := validate(input, now); err != nil {
		return Output{}, err
	}

	weights := resolveWeights(input, now)
	if input.Strict {
		if err := validateStrictWeights(weights, input.States, now); err != nil {
			return Output{}, err
		}
	}

	temperature := input.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	optimism := input.Optimism
	if optimism == 0 {
		optimism = defaultOptimism
	}
	epsilon := input.Epsilon
	if epsilon == 0 {
		epsilon = defaultEpsilon
	}

	var scores map[string]float64
	var ascending bool

	switch input.Algorithm {
	case AlgorithmMinimaxRegret:
		scores = minimaxRegret(input)
		ascending = true
	case AlgorithmMaximin:
		scores = maximin(input)
	case AlgorithmWeightedSum:
		scores = weightedSum(input, weights)
	case AlgorithmSoftmax:
		scores = softmax(input, temperature)
	case AlgorithmHurwicz:
		scores = hurwicz(input, optimism)
	case AlgorithmHodgesLehmann:
		laplace := weightedSum(input, uniformWeights(input.States))
		regret := minimaxRegret(input)
		scores = subtractScores(laplace, regret)
	case AlgorithmPareto:
		scores = pareto(input)
	case AlgorithmEpsilonContamination:
		laplace := weightedSum(input, uniformWeights(input.States))
		mm := maximin(input)
		scores = blendScores(laplace, mm, epsilon)
	case AlgorithmTopsis:
		scores = topsis(input)
	default:
		return Output{}, errs.New(errs.KindValidationFailed, "unknown decision algorithm", errs.SeverityError, now)
	}

	ranking := rank(input.Actions, scores, ascending)
	processingTimeMs := c.Elapsed(start).Milliseconds()

	return Output{
		RecommendedAction: ranking[0],
		Ranking:           ranking,
		Scores:            scores,
		Trace: Trace{
			Algorithm:        input.Algorithm,
			ComputedAt:       now,
			Scores:           scores,
			ProcessingTimeMs: processingTimeMs,
		},
	}, nil
}

func validate(input Input, now string) error {
	if len(input.Actions) == 0 {
		return errs.New(errs.KindValidationFailed, "actions must not be empty", errs.SeverityError, now)
	}
	if len(input.States) == 0 {
		return errs.New(errs.KindValidationFailed, "states must not be empty", errs.SeverityError, now)
	}
	for _, a := range input.Actions {
		row, ok := input.Outcomes[a]
		if !ok {
			return errs.New(errs.KindValidationFailed, "missing outcomes for action "+a, errs.SeverityError, now)
		}
		for _, s := range input.States {
			v, ok := row[s]
			if !ok {
				return errs.New(errs.KindValidationFailed, "missing outcome for action "+a+" state "+s, errs.SeverityError, now)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errs.New(errs.KindValidationFailed, "outcome for action "+a+" state "+s+" is not finite", errs.SeverityError, now)
			}
		}
	}
	return nil
}

func resolveWeights(input Input, now string) map[string]float64 {
	if len(input.Weights) == 0 {
		return uniformWeights(input.States)
	}
	if input.Strict {
		return input.Weights
	}
	return normalizeWeights(input.Weights, input.States)
}

func uniformWeights(states []string) map[string]float64 {
	w := make(map[string]float64, len(states))
	uniform := 1.0 / float64(len(states))
	for _, s := range states {
		w[s] = uniform
	}
	return w
}

func normalizeWeights(weights map[string]float64, states []string) map[string]float64 {
	sum := 0.0
	for _, s := range states {
		sum += weights[s]
	}
	out := make(map[string]float64, len(states))
	if sum == 0 {
		return uniformWeights(states)
	}
	for _, s := range states {
		out[s] = weights[s] / sum
	}
	return out
}

func validateStrictWeights(weights map[string]float64, states []string, now string) error {
	sum := 0.0
	for _, s := range states {
		w := weights[s]
		if w < 0 || w > 1 {
			return errs.New(errs.KindValidationFailed, "strict weights must each be in [0,1]", errs.SeverityError, now)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return errs.New(errs.KindValidationFailed, "strict weights must sum to exactly 1.0", errs.SeverityError, now)
	}
	return nil
}

func minimaxRegret(input Input) map[string]float64 {
	best := make(map[string]float64, len(input.States))
	for _, s := range input.States {
		max := math.Inf(-1)
		for _, a := range input.Actions {
			if v := input.Outcomes[a][s]; v > max {
				max = v
			}
		}
		best[s] = max
	}

	scores := make(map[string]float64, len(input.Actions))
	for _, a := range input.Actions {
		maxRegret := math.Inf(-1)
		for _, s := range input.States {
			regret := best[s] - input.Outcomes[a][s]
			if regret > maxRegret {
				maxRegret = regret
			}
		}
		scores[a] = maxRegret
	}
	return scores
}

func maximin(input Input) map[string]float64 {
	scores := make(map[string]float64, len(input.Actions))
	for _, a := range input.Actions {
		min := math.Inf(1)
		for _, s := range input.States {
			if v := input.Outcomes[a][s]; v < min {
				min = v
			}
		}
		scores[a] = min
	}
	return scores
}

func weightedSum(input Input, weights map[string]float64) map[string]float64 {
	scores := make(map[string]float64, len(input.Actions))
	for _, a := range input.Actions {
		sum := 0.0
		for _, s := range input.States {
			sum += input.Outcomes[a][s] * weights[s]
		}
		scores[a] = sum
	}
	return scores
}

func softmax(input Input, temperature float64) map[string]float64 {
	avgs := make(map[string]float64, len(input.Actions))
	for _, a := range input.Actions {
		sum := 0.0
		for _, s := range input.States {
			sum += input.Outcomes[a][s]
		}
		avgs[a] = sum / float64(len(input.States))
	}

	denom := 0.0
	exps := make(map[string]float64, len(input.Actions))
	for _, a := range input.Actions {
		e := math.Exp(avgs[a] / temperature)
		exps[a] = e
		denom += e
	}

	scores := make(map[string]float64, len(input.Actions))
	for _, a := range input.Actions {
		scores[a] = exps[a] / denom
	}
	return scores
}

func hurwicz(input Input, optimism float64) map[string]float64 {
	scores := make(map[string]float64, len(input.Actions))
	for _, a := range input.Actions {
		max := math.Inf(-1)
		min := math.Inf(1)
		for _, s := range input.States {
			v := input.Outcomes[a][s]
			if v > max {
				max = v
			}
			if v < min {
				min = v
			}
		}
		scores[a] = optimism*max + (1-optimism)*min
	}
	return scores
}

func pareto(input Input) map[string]float64 {
	scores := make(map[string]float64, len(input.Actions))
	for _, a := range input.Actions {
		count := 0
		for _, s := range input.States {
			dominant := true
			for _, other := range input.Actions {
				if input.Outcomes[a][s] < input.Outcomes[other][s] {
					dominant = false
					break
				}
			}
			if dominant {
				count++
			}
		}
		scores[a] = float64(count)
	}
	return scores
}

func topsis(input Input) map[string]float64 {
	norms := make(map[string]float64, len(input.States))
	for _, s := range input.States {
		sumSquares := 0.0
		for _, a := range input.Actions {
			v := input.Outcomes[a][s]
			sumSquares += v * v
		}
		norms[s] = math.Sqrt(sumSquares)
	}

	normalized := make(map[string]map[string]float64, len(input.Actions))
	for _, a := range input.Actions {
		row := make(map[string]float64, len(input.States))
		for _, s := range input.States {
			if norms[s] == 0 {
				row[s] = 0
				continue
			}
			row[s] = input.Outcomes[a][s] / norms[s]
		}
		normalized[a] = row
	}

	ideal := make(map[string]float64, len(input.States))
	antiIdeal := make(map[string]float64, len(input.States))
	for _, s := range input.States {
		max := math.Inf(-1)
		min := math.Inf(1)
		for _, a := range input.Actions {
			v := normalized[a][s]
			if v > max {
				max = v
			}
			if v < min {
				min = v
			}
		}
		ideal[s] = max
		antiIdeal[s] = min
	}

	scores := make(map[string]float64, len(input.Actions))
	for _, a := range input.Actions {
		distIdeal := 0.0
		distAnti := 0.0
		for _, s := range input.States {
			v := normalized[a][s]
			distIdeal += (v - ideal[s]) * (v - ideal[s])
			distAnti += (v - antiIdeal[s]) * (v - antiIdeal[s])
		}
		distIdeal = math.Sqrt(distIdeal)
		distAnti = math.Sqrt(distAnti)
		denom := distIdeal + distAnti
		if denom == 0 {
			scores[a] = 0
			continue
		}
		scores[a] = distAnti / denom
	}
	return scores
}

func subtractScores(a, b map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(a))
	for k := range a {
		out[k] = a[k] - b[k]
	}
	return out
}

func blendScores(a, b map[string]float64, epsilon float64) map[string]float64 {
	out := make(map[string]float64, len(a))
	for k := range a {
		out[k] = (1-epsilon)*a[k] + epsilon*b[k]
	}
	return out
}

func rank(actions []string, scores map[string]float64, ascending bool) []string {
	ranked := append([]string(nil), actions...)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i]], scores[ranked[j]]
		if ascending {
			return si < sj
		}
		return si > sj
	})
	return ranked
}
