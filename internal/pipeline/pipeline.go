// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline implements the Pipeline Manager: the INIT→GENERATE→CRITIC
// state machine that drives one idea from recall through a passing (or
// best-effort) Story, wiring together recall, selection, generation,
// critique, coaching, refinement, and novelty checking.
package pipeline

import (
	"context"
	"fmt"

	"github.com/pdiddy/idea2paper/internal/coach"
	"github.com/pdiddy/idea2paper/internal/critic"
	"github.com/pdiddy/idea2paper/internal/kgstore"
	"github.com/pdiddy/idea2paper/internal/novelty"
	"github.com/pdiddy/idea2paper/internal/recall"
	"github.com/pdiddy/idea2paper/internal/refine"
	"github.com/pdiddy/idea2paper/internal/selector"
	"github.com/pdiddy/idea2paper/internal/story"
	"github.com/pdiddy/idea2paper/pkg/types"
)

// Manager owns one end-to-end run for a single user idea.
type Manager struct {
	Store    *kgstore.Store
	Recall   *recall.Engine
	Selector *selector.Selector
	Story    *story.Generator
	Critic   *critic.Critic
	Coach    *coach.Coach
	Novelty  *novelty.Verifier
	Fusion   *refine.FusionEngine
	Tau      critic.TauTable
	Config   types.Config
}

// stageResult bundles what a single GENERATE→CRITIC round produced, so the
// state machine can reason about it without re-deriving anything.
type stageResult struct {
	patternID  types.PatternID
	story      types.Story
	audit      types.CriticAudit
	coachEdits []types.SuggestedEdit
}

// Run executes the full state machine for userIdea and returns the bundled
// PipelineResult.
func (m *Manager) Run(ctx context.Context, userIdea, ideaBrief string) (types.PipelineResult, error) {
	result := types.PipelineResult{}

	recalled, recallAudit, err := m.Recall.Recall(ctx, userIdea)
	result.RecallAudit = recallAudit
	if err != nil {
		return result, fmt.Errorf("recall: %w", err)
	}
	if len(recalled) == 0 {
		result.Success = false
		result.Reason = "no_candidate_patterns"
		return result, nil
	}

	ranking, err := m.Selector.Select(ctx, recalled, userIdea, ideaBrief)
	if err != nil {
		return result, fmt.Errorf("selector: %w", err)
	}
	if len(ranking.Stability) == 0 {
		result.Success = false
		result.Reason = "no_candidate_patterns"
		return result, nil
	}

	failures := refine.NewFailureMap()
	best := &refine.BestTracker{}
	pivots := 0
	var pivotConstraint *types.PivotConstraint

	maxRefine := m.Config.Refinement.MaxRefineIterations
	if maxRefine <= 0 {
		maxRefine = 3
	}

	patternID := ranking.Stability[0]
	var prevNovelty *float64
	iteration := 0

	for iteration < maxRefine {
		iteration++

		info, ok := m.Store.PatternByID(patternID)
		if !ok {
			result.Success = false
			result.Reason = "pattern_not_found"
			return result, nil
		}

		anchors, tau, err := m.buildAnchors(info)
		if err != nil {
			return result, err
		}

		round, err := m.generateAndCritique(ctx, patternID, info, ideaBrief, anchors, tau, nil, pivotConstraint)
		if err != nil {
			return result, err
		}

		result.ReviewHistory = append(result.ReviewHistory, round.audit)
		best.Consider(round.story, round.audit, iteration)

		if round.audit.Pass.Passed {
			collision, err := m.checkNovelty(ctx, round.story)
			if err != nil {
				return result, err
			}
			if collision != nil && collision.Pivot != nil && pivots < m.maxPivots() {
				pivots++
				pivotConstraint = collision.Pivot
				result.RefinementHistory = append(result.RefinementHistory, types.RefinementEvent{
					Iteration: iteration, PatternID: patternID, Trigger: "pivot",
				})
				continue
			}
			result.Success = true
			finalStory := round.story
			result.FinalStory = &finalStory
			result.FinalStorySource = types.FinalStorySource{Iteration: iteration, Score: round.audit.AverageScore()}
			result.Iterations = iteration
			result.Pivots = pivots
			return result, nil
		}

		noveltyScore := roleScore(round.audit, types.RoleNovelty)
		stagnated := false
		if prevNovelty != nil {
			stagnated = refine.NoveltyStagnated(*prevNovelty, noveltyScore, m.Config.Refinement.NoveltyStagnationDelta)
		}
		prevNovelty = &noveltyScore

		if stagnated {
			novResult, novErr := m.runNoveltyMode(ctx, ranking, failures, round, iteration)
			if novErr != nil {
				return result, novErr
			}
			result.ReviewHistory = append(result.ReviewHistory, novResult.reviewHistory...)
			result.RefinementHistory = append(result.RefinementHistory, novResult.events...)
			iteration = novResult.lastIteration
			for _, r := range novResult.reviewHistory {
				best.Consider(*novResult.lastStory, r, novResult.lastIteration)
			}
			if novResult.passed {
				result.Success = true
				finalStory := *novResult.lastStory
				result.FinalStory = &finalStory
				result.FinalStorySource = types.FinalStorySource{Iteration: novResult.lastIteration, Score: novResult.lastAudit.AverageScore()}
				result.Iterations = iteration
				result.Pivots = pivots
				return result, nil
			}
			break
		}

		rankingKind, issueKind := refine.DimensionForLowestRole(round.audit.Roles)
		next, ok := failures.NextUnfailed(rankingFor(ranking, rankingKind), issueKind)
		if !ok {
			break
		}

		fused, reflection, fusionErr := m.Fusion.Fuse(ctx, round.story, mustPattern(m.Store, next))
		injectedTricks := []string(nil)
		var fusedPtr *types.FusedIdea
		var reflectionGuidance []string
		if fusionErr == nil && reflection.FusionQuality >= m.fusionQualityThreshold() {
			fusedPtr = &fused
			injectedTricks = mustPattern(m.Store, next).CommonTricks
			reflectionGuidance = reflection.Suggestions
		}

		beforeRoles := round.audit.Roles
		nextInfo, ok := m.Store.PatternByID(next)
		if !ok {
			break
		}
		nextAnchors, nextTau, err := m.buildAnchors(nextInfo)
		if err != nil {
			return result, err
		}

		injectedRound, err := m.generateAndCritique(ctx, next, nextInfo, ideaBrief, nextAnchors, nextTau, &story.RefinementInputs{
			PreviousStory:      &round.story,
			CoachEdits:         round.coachEdits,
			FusedIdea:          fusedPtr,
			ReflectionGuidance: reflectionGuidance,
			InjectedTricks:     injectedTricks,
			Constraints:        pivotConstraint,
		}, pivotConstraint)
		if err != nil {
			return result, err
		}

		result.ReviewHistory = append(result.ReviewHistory, injectedRound.audit)
		best.Consider(injectedRound.story, injectedRound.audit, iteration+1)

		event := types.RefinementEvent{Iteration: iteration, PatternID: next, Trigger: "inject", FailedDim: issueKind}
		if refine.ShouldRollback(beforeRoles, injectedRound.audit.Roles, m.degradationThreshold()) {
			event.RolledBack = true
			failures.MarkFailed(next, issueKind)
			result.RefinementHistory = append(result.RefinementHistory, event)
			continue
		}
		result.RefinementHistory = append(result.RefinementHistory, event)

		if injectedRound.audit.Pass.Passed {
			result.Success = true
			finalStory := injectedRound.story
			result.FinalStory = &finalStory
			result.FinalStorySource = types.FinalStorySource{Iteration: iteration + 1, Score: injectedRound.audit.AverageScore()}
			result.Iterations = iteration + 1
			result.Pivots = pivots
			return result, nil
		}

		patternID = next
		iteration++
	}

	result.Iterations = iteration
	result.Pivots = pivots
	if best.HasBest() {
		result.Success = false
		result.Reason = "fallback_best"
		finalStory := *best.Story
		result.FinalStory = &finalStory
		result.FinalStorySource = types.FinalStorySource{
			Iteration: best.Iteration, Score: best.Score, IsBestAcrossIterations: true,
		}
	} else {
		result.Success = false
		result.Reason = "no_story_generated"
	}
	return result, nil
}

// buildAnchors selects anchors for a Pattern and returns them with the
// Manager's already-loaded τ table, refusing
// with ConfigError when no usable anchors exist anywhere in the cluster's
// widened search (the "insufficient anchors" boundary case).
func (m *Manager) buildAnchors(info types.Pattern) ([]types.AnchorSummary, critic.TauTable, error) {
	papers := m.Store.AnchorPapersForPattern(info.PatternID, 3)
	if len(papers) == 0 {
		return nil, critic.TauTable{}, &types.ConfigError{Reason: "insufficient anchors"}
	}
	quantiles := m.Config.Anchor.Quantiles
	if len(quantiles) == 0 {
		quantiles = critic.DefaultQuantiles
	}
	maxInitial := m.Config.Anchor.MaxInitial
	if maxInitial <= 0 {
		maxInitial = 11
	}
	maxExemplars := m.Config.Anchor.MaxExemplars
	if maxExemplars <= 0 {
		maxExemplars = 2
	}
	anchors := critic.SelectAnchors(papers, quantiles, maxInitial, maxExemplars)
	return anchors, m.Tau, nil
}

// generateAndCritique runs one GENERATE→CRITIC round for a Pattern.
func (m *Manager) generateAndCritique(ctx context.Context, patternID types.PatternID, info types.Pattern, ideaBrief string, anchors []types.AnchorSummary, tau critic.TauTable, refinement *story.RefinementInputs, pivot *types.PivotConstraint) (stageResult, error) {
	if refinement == nil && pivot != nil {
		refinement = &story.RefinementInputs{Constraints: pivot}
	}
	s, err := m.Story.Generate(ctx, patternID, info, ideaBrief, refinement)
	if err != nil {
		return stageResult{}, fmt.Errorf("generate: %w", err)
	}

	papers := m.Store.AnchorPapersForPattern(patternID, 3)
	q50, q75 := critic.PassThresholds(papers)

	anchorTexts := m.anchorTexts(anchors)
	audit, err := m.Critic.Review(ctx, s, anchors, anchorTexts, tau, q50, q75)
	if err != nil {
		return stageResult{}, fmt.Errorf("critic: %w", err)
	}

	var coachEdits []types.SuggestedEdit
	if m.Coach != nil {
		advice, err := m.Coach.Advise(ctx, s, audit)
		if err != nil {
			return stageResult{}, fmt.Errorf("coach: %w", err)
		}
		coachEdits = advice.SuggestedEdits
	}

	return stageResult{patternID: patternID, story: s, audit: audit, coachEdits: coachEdits}, nil
}

// anchorTexts resolves each selected anchor's blind-card source text from
// the KG store. Papers carry no free-text problem/method fields in this
// system's KG, so the anchor card is built from the Pattern's structured
// summary shared across its cluster. The fallback below must never reach
// for paper-identifying text (title, URL, paper_id) — a blind card may only
// ever describe the cluster the anchor was drawn from.
func (m *Manager) anchorTexts(anchors []types.AnchorSummary) map[types.PaperID]critic.AnchorText {
	texts := make(map[types.PaperID]critic.AnchorText, len(anchors))
	for _, a := range anchors {
		paper, _ := m.Store.PaperByID(a.PaperID)
		pattern, _ := m.Store.PatternByID(paper.PatternID)
		texts[a.PaperID] = critic.AnchorText{
			Problem: firstOr(pattern.Summary.CommonProblems, clusterNarrative(pattern)),
			Method:  firstOr(pattern.Summary.SolutionApproaches, pattern.Name),
			Contrib: firstOr(pattern.Summary.Story, clusterNarrative(pattern)),
		}
	}
	return texts
}

// clusterNarrative produces a paper-agnostic description of a Pattern
// cluster for use when its summary carries no CommonProblems text, so a
// blind anchor card never falls back to a real paper's title.
func clusterNarrative(pattern types.Pattern) string {
	return fmt.Sprintf("a paper from the %q pattern cluster (%d papers, domain %s)",
		pattern.Name, pattern.ClusterSize, pattern.Domain)
}

type noveltyModeResult struct {
	reviewHistory []types.CriticAudit
	events        []types.RefinementEvent
	lastIteration int
	lastStory     *types.Story
	lastAudit     types.CriticAudit
	passed        bool
}

// runNoveltyMode handles the novelty-stagnation branch: iterate over up to
// NoveltyModeMaxPatterns candidates from the novelty ranking, fusion→
// reflection gating each attempt, exiting early on the first pass.
func (m *Manager) runNoveltyMode(ctx context.Context, ranking types.SelectorRanking, failures *refine.FailureMap, seed stageResult, startIteration int) (noveltyModeResult, error) {
	out := noveltyModeResult{lastIteration: startIteration, lastStory: &seed.story, lastAudit: seed.audit}

	maxPatterns := m.Config.Refinement.NoveltyModeMaxPatterns
	if maxPatterns <= 0 {
		maxPatterns = 10
	}

	attempted := 0
	for _, candidate := range ranking.Novelty {
		if attempted >= maxPatterns {
			break
		}
		if failures.IsFailed(candidate, string(types.RoleNovelty)) {
			continue
		}
		attempted++
		iteration := startIteration + attempted

		pattern, ok := m.Store.PatternByID(candidate)
		if !ok {
			continue
		}
		fused, reflection, err := m.Fusion.Fuse(ctx, seed.story, pattern)
		if err != nil || reflection.FusionQuality < m.fusionQualityThreshold() {
			out.events = append(out.events, types.RefinementEvent{
				Iteration: iteration, PatternID: candidate, Trigger: "novelty_mode", FailedDim: "fusion_quality",
			})
			continue
		}

		anchors, tau, err := m.buildAnchors(pattern)
		if err != nil {
			return out, err
		}
		round, err := m.generateAndCritique(ctx, candidate, pattern, "", anchors, tau, &story.RefinementInputs{
			PreviousStory:      &seed.story,
			CoachEdits:         seed.coachEdits,
			FusedIdea:          &fused,
			ReflectionGuidance: reflection.Suggestions,
		}, nil)
		if err != nil {
			return out, err
		}

		out.reviewHistory = append(out.reviewHistory, round.audit)
		out.events = append(out.events, types.RefinementEvent{Iteration: iteration, PatternID: candidate, Trigger: "novelty_mode"})
		out.lastIteration = iteration
		out.lastStory = &round.story
		out.lastAudit = round.audit

		if round.audit.Pass.Passed {
			out.passed = true
			return out, nil
		}
	}
	return out, nil
}

// checkNovelty runs the Novelty Verifier when configured, translating a
// fail-action collision into an error and a pivot-action collision into the
// PivotConstraint the caller should re-inject.
func (m *Manager) checkNovelty(ctx context.Context, s types.Story) (*novelty.Outcome, error) {
	if m.Novelty == nil {
		return nil, nil
	}
	outcome, err := m.Novelty.Check(ctx, s)
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (m *Manager) maxPivots() int {
	if m.Config.Novelty.MaxPivots <= 0 {
		return 1
	}
	return m.Config.Novelty.MaxPivots
}

func (m *Manager) degradationThreshold() float64 {
	if m.Config.Refinement.DegradationThreshold == 0 {
		return 0.1
	}
	return m.Config.Refinement.DegradationThreshold
}

func (m *Manager) fusionQualityThreshold() float64 {
	if m.Config.Refinement.FusionQualityThreshold == 0 {
		return 0.65
	}
	return m.Config.Refinement.FusionQualityThreshold
}

func roleScore(audit types.CriticAudit, role types.Role) float64 {
	return audit.Roles[role].S
}

func rankingFor(ranking types.SelectorRanking, kind string) []types.PatternID {
	switch kind {
	case "novelty":
		return ranking.Novelty
	case "domain_distance":
		return ranking.DomainDistance
	default:
		return ranking.Stability
	}
}

func mustPattern(store *kgstore.Store, id types.PatternID) types.Pattern {
	p, _ := store.PatternByID(id)
	return p
}

func firstOr(items []string, fallback string) string {
	if len(items) > 0 {
		return items[0]
	}
	return fallback
}
