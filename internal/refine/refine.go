// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refine

import "github.com/pdiddy/idea2paper/pkg/types"

// FailureMap tracks per-(pattern, issue_kind) refinement failures, rather
// than failure per-pattern only, so a pattern that failed on one dimension
// can still be retried for another.
type FailureMap struct {
	failed map[types.PatternID]map[string]bool
}

// NewFailureMap returns an empty FailureMap.
func NewFailureMap() *FailureMap {
	return &FailureMap{failed: map[types.PatternID]map[string]bool{}}
}

// MarkFailed records that pattern failed for issueKind (e.g. "methodology",
// "novelty", "storyteller", or "fusion_quality").
func (m *FailureMap) MarkFailed(pattern types.PatternID, issueKind string) {
	if m.failed[pattern] == nil {
		m.failed[pattern] = map[string]bool{}
	}
	m.failed[pattern][issueKind] = true
}

// IsFailed reports whether pattern has been marked failed for issueKind.
func (m *FailureMap) IsFailed(pattern types.PatternID, issueKind string) bool {
	return m.failed[pattern] != nil && m.failed[pattern][issueKind]
}

// NextUnfailed returns the first PatternID in ranking not yet marked failed
// for issueKind: the caller passes the ranking matching the role that
// scored lowest, so this pulls the next untried candidate for that
// dimension.
func (m *FailureMap) NextUnfailed(ranking []types.PatternID, issueKind string) (types.PatternID, bool) {
	for _, p := range ranking {
		if !m.IsFailed(p, issueKind) {
			return p, true
		}
	}
	return "", false
}

// DimensionForLowestRole maps the lowest-scoring role to the selector
// ranking and failure-map issue kind: Novelty-low pulls from the novelty
// ranking, Methodology-low from stability, Storyteller-low from
// domain_distance.
func DimensionForLowestRole(roles map[types.Role]types.RoleAudit) (rankingKind string, issueKind string) {
	lowest := types.RoleMethodology
	lowestScore := 11.0
	for _, role := range types.Roles {
		if audit, ok := roles[role]; ok && audit.S < lowestScore {
			lowestScore = audit.S
			lowest = role
		}
	}
	switch lowest {
	case types.RoleNovelty:
		return "novelty", string(types.RoleNovelty)
	case types.RoleStoryteller:
		return "domain_distance", string(types.RoleStoryteller)
	default:
		return "stability", string(types.RoleMethodology)
	}
}

// ShouldRollback applies the rollback rule: any role score dropping more
// than DegradationThreshold below its pre-refinement value.
func ShouldRollback(before, after map[types.Role]types.RoleAudit, degradationThreshold float64) bool {
	for role, beforeAudit := range before {
		afterAudit, ok := after[role]
		if !ok {
			continue
		}
		if beforeAudit.S-afterAudit.S > degradationThreshold {
			return true
		}
	}
	return false
}

// NoveltyStagnated reports whether the novelty role's improvement across
// two consecutive rounds is at or below stagnationDelta (0.5 when zero is
// passed), the threshold for entering NOVELTY_MODE.
func NoveltyStagnated(prevNovelty, currNovelty, stagnationDelta float64) bool {
	if stagnationDelta == 0 {
		stagnationDelta = 0.5
	}
	return currNovelty-prevNovelty <= stagnationDelta
}

// BestTracker tracks the highest-average-score Story seen across all
// CRITIC rounds, used as the global-best fallback when refinement never
// converges within the iteration budget.
type BestTracker struct {
	Story     *types.Story
	Score     float64
	Iteration int
	set       bool
}

// Consider updates the tracker if audit's average score exceeds the
// current best.
func (b *BestTracker) Consider(s types.Story, audit types.CriticAudit, iteration int) {
	avg := audit.AverageScore()
	if !b.set || avg > b.Score {
		story := s
		b.Story = &story
		b.Score = avg
		b.Iteration = iteration
		b.set = true
	}
}

// HasBest reports whether Consider has ever been called.
func (b *BestTracker) HasBest() bool { return b.set }
