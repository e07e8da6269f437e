// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package critic

import (
	"math"
	"sort"

	"github.com/pdiddy/idea2paper/pkg/types"
)

// GridMin and GridMax bound the score-inference search grid; scores are
// defined on [1,10] per the Story/anchor scoring contract.
const (
	GridMin = 1.0
	GridMax = 10.0
)

const defaultGridStep = 0.01

// judgementY maps a blind pairwise judgement to its target probability.
func judgementY(j types.Judgement) float64 {
	switch j {
	case types.JudgementBetter:
		return 1.0
	case types.JudgementTie:
		return 0.5
	default:
		return 0.0
	}
}

// strengthWeight maps a Strength label to its numeric weight.
func strengthWeight(s types.Strength) float64 {
	switch s {
	case types.StrengthWeak:
		return 1.0
	case types.StrengthMedium:
		return 2.0
	default:
		return 3.0
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// bce is the binary cross-entropy of predicted probability p against target
// y, clamped away from 0/1 to avoid infinities on saturated comparisons.
func bce(y, p float64) float64 {
	const eps = 1e-9
	if p < eps {
		p = eps
	}
	if p > 1-eps {
		p = 1 - eps
	}
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

// InferenceInput is one anchor comparison plus its resolved anchor score10
// and program-computed anchor weight, ready for the scoring kernel.
type InferenceInput struct {
	Score10       float64
	AnchorWeight  float64
	Judgement     types.Judgement
	Strength      types.Strength
}

// InferenceResult is the deterministic output of Infer.
type InferenceResult struct {
	S                   float64
	Loss                float64
	AvgStrength         float64
	MonotonicViolations int
	CILow               float64
	CIHigh              float64
}

// Infer runs the deterministic grid-search score-inference kernel: for each
// candidate S on [1,10] stepped by gridStep, compute the anchor-weighted BCE
// loss against every comparison's target probability, and return the S
// minimizing total loss. Pure function: same inputs always produce the same
// S within gridStep.
func Infer(inputs []InferenceInput, tau, gridStep float64) InferenceResult {
	if gridStep <= 0 {
		gridStep = defaultGridStep
	}

	bestS := GridMin
	bestLoss := math.Inf(1)
	losses := make(map[float64]float64)

	for s := GridMin; s <= GridMax+1e-9; s += gridStep {
		loss := 0.0
		for _, in := range inputs {
			w := in.AnchorWeight * strengthWeight(in.Strength)
			p := sigmoid((s - in.Score10) / tau)
			loss += w * bce(judgementY(in.Judgement), p)
		}
		losses[round2(s)] = loss
		if loss < bestLoss {
			bestLoss = loss
			bestS = s
		}
	}

	var strengthSum float64
	for _, in := range inputs {
		strengthSum += strengthWeight(in.Strength)
	}
	avgStrength := 0.0
	if len(inputs) > 0 {
		avgStrength = strengthSum / float64(len(inputs)) / 3.0
	}

	ciLow, ciHigh := confidenceBand(losses, bestLoss, gridStep)

	return InferenceResult{
		S:                   round2(bestS),
		Loss:                bestLoss,
		AvgStrength:         avgStrength,
		MonotonicViolations: monotonicViolations(inputs),
		CILow:               ciLow,
		CIHigh:              ciHigh,
	}
}

// confidenceBand widens outward from the minimum-loss grid point until loss
// exceeds minLoss+1 nat, giving a deterministic (non-bootstrapped) proxy for
// a confidence interval around the inferred S.
func confidenceBand(losses map[float64]float64, minLoss, gridStep float64) (float64, float64) {
	const bandThreshold = 1.0
	points := make([]float64, 0, len(losses))
	for s := range losses {
		points = append(points, s)
	}
	sort.Float64s(points)

	low, high := GridMin, GridMax
	for _, s := range points {
		if losses[s] <= minLoss+bandThreshold {
			low = s
			break
		}
	}
	for i := len(points) - 1; i >= 0; i-- {
		if losses[points[i]] <= minLoss+bandThreshold {
			high = points[i]
			break
		}
	}
	return low, high
}

// monotonicViolations counts anchor pairs whose judged ordering contradicts
// their real score10 ordering: a pair counts when the story is judged
// strictly more favourably against the higher-score10 anchor than against
// the lower-score10 one (e.g. worse than a weak anchor but better than a
// strong one).
func monotonicViolations(inputs []InferenceInput) int {
	sorted := append([]InferenceInput(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score10 < sorted[j].Score10 })

	violations := 0
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			yi := judgementY(sorted[i].Judgement)
			yj := judgementY(sorted[j].Judgement)
			if yi < yj {
				violations++
			}
		}
	}
	return violations
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
