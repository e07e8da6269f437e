// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package critic

import (
	"math"
	"sort"

	"github.com/pdiddy/idea2paper/pkg/types"
)

// DefaultQuantiles is the default anchor-selection quantile set.
var DefaultQuantiles = []float64{0.05, 0.15, 0.25, 0.50, 0.75, 0.85, 0.95}

// anchorWeight computes the AnchorSummary weight formula from review_stats:
// log(1+review_count) / (1+dispersion10).
func anchorWeight(stats types.ReviewStats) float64 {
	return math.Log(1+float64(stats.ReviewCount)) / (1 + stats.Dispersion10)
}

// SelectAnchors picks quantile anchors plus up to maxExemplars highest-weight
// exemplars, capped at maxInitial, built only from Papers with usable
// review_stats.
func SelectAnchors(papers []types.Paper, quantiles []float64, maxInitial, maxExemplars int) []types.AnchorSummary {
	if len(quantiles) == 0 {
		quantiles = DefaultQuantiles
	}

	summaries := make([]types.AnchorSummary, 0, len(papers))
	for _, p := range papers {
		if p.ReviewStats == nil {
			continue
		}
		summaries = append(summaries, types.AnchorSummary{
			PaperID: p.PaperID,
			Score10: p.ReviewStats.AvgScore10,
			Weight:  anchorWeight(*p.ReviewStats),
		})
	}
	if len(summaries) == 0 {
		return nil
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Score10 < summaries[j].Score10 })

	selected := map[types.PaperID]types.AnchorSummary{}
	for _, q := range quantiles {
		selected[nearestByQuantile(summaries, q).PaperID] = nearestByQuantile(summaries, q)
	}

	byWeight := append([]types.AnchorSummary(nil), summaries...)
	sort.Slice(byWeight, func(i, j int) bool { return byWeight[i].Weight > byWeight[j].Weight })
	exemplarsAdded := 0
	for _, a := range byWeight {
		if exemplarsAdded >= maxExemplars {
			break
		}
		if _, ok := selected[a.PaperID]; ok {
			continue
		}
		selected[a.PaperID] = a
		exemplarsAdded++
	}

	out := make([]types.AnchorSummary, 0, len(selected))
	for _, a := range selected {
		out = append(out, a)
	}
	// Stable score10-ascending order: local aliases A1..AK must reproduce
	// across replays.
	sort.Slice(out, func(i, j int) bool { return out[i].Score10 < out[j].Score10 })

	if maxInitial > 0 && len(out) > maxInitial {
		out = out[:maxInitial]
	}
	return out
}

func nearestByQuantile(sorted []types.AnchorSummary, q float64) types.AnchorSummary {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(math.Round(q * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Quantile returns the q-quantile of a sorted-ascending float64 slice using
// linear interpolation between the two nearest ranks, used to compute the per-Pattern pass-rule
// thresholds q50/q75 from real score10 values.
func Quantile(sortedAscending []float64, q float64) float64 {
	n := len(sortedAscending)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sortedAscending[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sortedAscending[lo]
	}
	frac := pos - float64(lo)
	return sortedAscending[lo]*(1-frac) + sortedAscending[hi]*frac
}
