// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package critic implements the Anchored Critic: blind LLM pairwise
// judgments against real anchor papers, reduced to reproducible 1-10 scores
// per role via the deterministic score-inference kernel in
// score_inference.go.
package critic

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/pdiddy/idea2paper/internal/gateway"
	"github.com/pdiddy/idea2paper/pkg/types"
)

// AnchorText supplies the narrative fields used to render an anchor's
// BlindCard; callers derive these from the anchor Pattern's summary, never
// from the Paper's own identity fields.
type AnchorText struct {
	Problem string
	Method  string
	Contrib string
}

// Critic runs the per-role blind judgment + score inference pipeline.
type Critic struct {
	LLM            gateway.LLMGateway
	Config         types.SamplingConfig
	Densify        types.DensifyConfig
	ScoreInference types.ScoreInferenceConfig
	// AnchorMaxTotal caps how many anchors (real plus densified) a single
	// role judgment may ever carry, mirroring anchor.anchor_max_total.
	AnchorMaxTotal int
	Model          string
}

type roleResponse struct {
	RubricVersion string             `json:"rubric_version"`
	Comparisons   []types.Comparison `json:"comparisons"`
}

// Review runs the full blind-judgment pipeline for one Pattern's cluster: it
// builds blind cards, runs one LLM call per role concurrently, validates
// and infers scores, optionally densifies once, and returns the full audit.
func (c *Critic) Review(ctx context.Context, story types.Story, anchors []types.AnchorSummary, anchorTexts map[types.PaperID]AnchorText, tau TauTable, q50, q75 float64) (types.CriticAudit, error) {
	storyCard := BuildStoryCard(story)
	aliasOrder, aliasToAnchor, anchorCards := aliasAnchors(anchors, anchorTexts)

	roleAudits, err := c.runRoles(ctx, storyCard, anchorCards, aliasOrder, aliasToAnchor, anchors, anchorTexts, tau)
	if err != nil {
		return types.CriticAudit{}, err
	}

	pass := types.PassDecision{Q50: q50, Q75: q75, Passed: evaluatePass(roleAudits, q50, q75)}
	return types.CriticAudit{Anchors: anchors, Roles: roleAudits, Pass: pass}, nil
}

func (c *Critic) runRoles(ctx context.Context, storyCard types.BlindCard, anchorCards map[types.LocalAlias]types.BlindCard, aliasOrder []types.LocalAlias, aliasToAnchor map[types.LocalAlias]types.AnchorSummary, anchors []types.AnchorSummary, anchorTexts map[types.PaperID]AnchorText, tau TauTable) (map[types.Role]types.RoleAudit, error) {
	type roleResult struct {
		role  types.Role
		audit types.RoleAudit
		err   error
	}

	ch := make(chan roleResult, len(types.Roles))
	var wg sync.WaitGroup
	for _, role := range types.Roles {
		wg.Add(1)
		go func(role types.Role) {
			defer wg.Done()
			audit, err := c.judgeRole(ctx, role, storyCard, anchorCards, aliasOrder, aliasToAnchor, anchors, anchorTexts, tau.ForRole(role))
			ch <- roleResult{role: role, audit: audit, err: err}
		}(role)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	out := make(map[types.Role]types.RoleAudit, len(types.Roles))
	var firstErr error
	for r := range ch {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		out[r.role] = r.audit
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (c *Critic) judgeRole(ctx context.Context, role types.Role, storyCard types.BlindCard, anchorCards map[types.LocalAlias]types.BlindCard, aliasOrder []types.LocalAlias, aliasToAnchor map[types.LocalAlias]types.AnchorSummary, anchors []types.AnchorSummary, anchorTexts map[types.PaperID]AnchorText, tau float64) (types.RoleAudit, error) {
	comparisons, err := c.requestComparisons(ctx, role, storyCard, anchorCards, aliasOrder)
	if err != nil {
		return types.RoleAudit{}, err
	}

	audit := scoreComparisons(role, comparisons, aliasToAnchor, tau, c.gridStep())

	if c.shouldDensify(audit) {
		densifiedAnchors, densifiedTexts := c.densifyAnchors(anchors, anchorTexts, audit.S)
		if len(densifiedAnchors) > len(anchors) {
			densOrder, densAliasToAnchor, densCards := aliasAnchors(densifiedAnchors, densifiedTexts)
			densified, err := c.requestComparisons(ctx, role, storyCard, densCards, densOrder)
			if err == nil {
				second := scoreComparisons(role, densified, densAliasToAnchor, tau, c.gridStep())
				second.Densified = true
				return second, nil
			}
		}
	}

	return audit, nil
}

// densifyAnchors adds bucket anchors centered on centerS, one BucketCount
// steps of BucketSize out on each side, so the second blind round probes the
// region around the first round's provisional score instead of repeating
// the same anchor set verbatim. Each synthetic anchor reuses the blind card
// text of whichever real anchor sits nearest its target score, so no new
// paper identity is ever introduced; the merged set is capped at
// AnchorMaxTotal.
func (c *Critic) densifyAnchors(anchors []types.AnchorSummary, texts map[types.PaperID]AnchorText, centerS float64) ([]types.AnchorSummary, map[types.PaperID]AnchorText) {
	if len(anchors) == 0 {
		return anchors, texts
	}

	bucketSize := c.Densify.BucketSize
	if bucketSize <= 0 {
		bucketSize = 1
	}
	bucketCount := c.Densify.BucketCount
	if bucketCount <= 0 {
		bucketCount = 2
	}
	maxTotal := c.AnchorMaxTotal
	if maxTotal <= 0 {
		maxTotal = len(anchors) + 2*bucketCount
	}

	out := append([]types.AnchorSummary(nil), anchors...)
	outTexts := make(map[types.PaperID]AnchorText, len(texts))
	for k, v := range texts {
		outTexts[k] = v
	}

	added := 0
	for step := 1; step <= bucketCount && len(out) < maxTotal; step++ {
		offset := float64(step) * float64(bucketSize)
		for _, sign := range [...]float64{-1, 1} {
			if len(out) >= maxTotal {
				break
			}
			target := centerS + sign*offset
			if target < GridMin || target > GridMax {
				continue
			}
			nearest := nearestAnchorByScore(anchors, target)
			if nearest.PaperID == "" {
				continue
			}
			added++
			synthetic := types.AnchorSummary{
				PaperID: types.PaperID(fmt.Sprintf("%s-bucket-%d", nearest.PaperID, added)),
				Score10: target,
				Weight:  nearest.Weight,
			}
			out = append(out, synthetic)
			outTexts[synthetic.PaperID] = texts[nearest.PaperID]
		}
	}

	return out, outTexts
}

func nearestAnchorByScore(anchors []types.AnchorSummary, target float64) types.AnchorSummary {
	var best types.AnchorSummary
	bestDist := math.MaxFloat64
	for _, a := range anchors {
		if d := math.Abs(a.Score10 - target); d < bestDist {
			bestDist = d
			best = a
		}
	}
	return best
}

func (c *Critic) gridStep() float64 {
	if c.ScoreInference.GridStep > 0 {
		return c.ScoreInference.GridStep
	}
	return defaultGridStep
}

func (c *Critic) shouldDensify(audit types.RoleAudit) bool {
	if !c.Densify.Enable {
		return false
	}
	lossThreshold := c.Densify.LossThreshold
	minAvgConf := c.Densify.MinAvgConfidence
	return audit.Loss > lossThreshold || audit.MonotonicViolations >= 1 || audit.AvgStrength < minAvgConf
}

func (c *Critic) requestComparisons(ctx context.Context, role types.Role, storyCard types.BlindCard, anchorCards map[types.LocalAlias]types.BlindCard, aliasOrder []types.LocalAlias) ([]types.Comparison, error) {
	prompt := BuildRolePrompt(role, storyCard, anchorCards, aliasOrder)
	if err := ValidateBlindLeak(prompt); err != nil {
		return nil, fmt.Errorf("critic prompt for role %s failed blind-leak validation: %w", role, err)
	}

	retries := c.Config.JSONRetries
	if retries <= 0 {
		retries = 2
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		p := prompt
		if attempt > 0 {
			p = fmt.Sprintf("%s\n\nYour previous response was invalid (%v). Respond again with ONLY the required JSON.", prompt, lastErr)
		}
		resp, err := c.LLM.Chat(ctx, gateway.ChatRequest{
			Messages:       []gateway.ChatMessage{{Role: "user", Content: p}},
			Model:          c.Model,
			Temperature:    c.Config.CriticTemperature,
			MaxTokens:      2048,
			ResponseFormat: gateway.ResponseFormatJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("critic llm call for role %s: %w", role, err)
		}

		var parsed roleResponse
		if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
			lastErr = err
			continue
		}
		if err := validateComparisons(parsed.Comparisons, aliasOrder); err != nil {
			lastErr = err
			continue
		}
		return parsed.Comparisons, nil
	}

	return nil, &types.InvalidOutput{Stage: fmt.Sprintf("critic_role_%s", role), Reason: lastErr.Error(), Attempt: retries + 1}
}

func validateComparisons(comparisons []types.Comparison, aliasOrder []types.LocalAlias) error {
	seen := map[types.LocalAlias]bool{}
	for _, c := range comparisons {
		if seen[c.AnchorID] {
			return fmt.Errorf("anchor %s covered more than once", c.AnchorID)
		}
		seen[c.AnchorID] = true
		if err := ValidateBlindLeak(c.Rationale); err != nil {
			return fmt.Errorf("rationale for %s: %w", c.AnchorID, err)
		}
		if len(strings.Fields(c.Rationale)) > 25 {
			return fmt.Errorf("rationale for %s exceeds 25 words", c.AnchorID)
		}
	}
	for _, alias := range aliasOrder {
		if !seen[alias] {
			return fmt.Errorf("anchor %s not covered", alias)
		}
	}
	return nil
}

func scoreComparisons(role types.Role, comparisons []types.Comparison, aliasToAnchor map[types.LocalAlias]types.AnchorSummary, tau, gridStep float64) types.RoleAudit {
	inputs := make([]InferenceInput, 0, len(comparisons))
	for _, c := range comparisons {
		anchor := aliasToAnchor[c.AnchorID]
		inputs = append(inputs, InferenceInput{
			Score10:      anchor.Score10,
			AnchorWeight: anchor.Weight,
			Judgement:    c.Judgement,
			Strength:     c.Strength,
		})
	}

	result := Infer(inputs, tau, gridStep)
	return types.RoleAudit{
		Role:                role,
		RubricVersion:       CurrentRubricVersion,
		Comparisons:         comparisons,
		Loss:                result.Loss,
		AvgStrength:         result.AvgStrength,
		MonotonicViolations: result.MonotonicViolations,
		CILow:               result.CILow,
		CIHigh:              result.CIHigh,
		Tau:                 tau,
		S:                   result.S,
	}
}

// evaluatePass applies the pass rule: at least 2 of 3 role scores at or
// above q75, and the average at or above q50.
func evaluatePass(roles map[types.Role]types.RoleAudit, q50, q75 float64) bool {
	if len(roles) == 0 {
		return false
	}
	aboveQ75 := 0
	var sum float64
	for _, r := range roles {
		if r.S >= q75 {
			aboveQ75++
		}
		sum += r.S
	}
	avg := sum / float64(len(roles))
	return aboveQ75 >= 2 && avg >= q50
}

// aliasAnchors assigns stable local aliases A1..AK to anchors sorted
// ascending by score10, so the ordering is reproducible across replays, and
// renders each anchor's BlindCard from its Pattern-cluster narrative text.
func aliasAnchors(anchors []types.AnchorSummary, texts map[types.PaperID]AnchorText) ([]types.LocalAlias, map[types.LocalAlias]types.AnchorSummary, map[types.LocalAlias]types.BlindCard) {
	sorted := append([]types.AnchorSummary(nil), anchors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score10 < sorted[j].Score10 })

	order := make([]types.LocalAlias, 0, len(sorted))
	aliasToAnchor := make(map[types.LocalAlias]types.AnchorSummary, len(sorted))
	cards := make(map[types.LocalAlias]types.BlindCard, len(sorted))
	for i, a := range sorted {
		alias := types.LocalAlias(fmt.Sprintf("A%d", i+1))
		order = append(order, alias)
		aliasToAnchor[alias] = a
		t := texts[a.PaperID]
		cards[alias] = BuildAnchorCard(t.Problem, t.Method, t.Contrib)
	}
	return order, aliasToAnchor, cards
}

// PassThresholds computes the deterministic q50/q75 thresholds from a
// Pattern's Papers' real score10 distribution.
func PassThresholds(papers []types.Paper) (q50, q75 float64) {
	var scores []float64
	for _, p := range papers {
		if p.ReviewStats != nil {
			scores = append(scores, p.ReviewStats.AvgScore10)
		}
	}
	sort.Float64s(scores)
	return Quantile(scores, 0.50), Quantile(scores, 0.75)
}
