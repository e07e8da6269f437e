// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package critic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/idea2paper/internal/llmclient"
	"github.com/pdiddy/idea2paper/pkg/types"
)

func fixedAnchors() []types.AnchorSummary {
	return []types.AnchorSummary{
		{PaperID: "p5", Score10: 5, Weight: 1},
		{PaperID: "p6", Score10: 6, Weight: 1},
		{PaperID: "p7", Score10: 7, Weight: 1},
		{PaperID: "p8", Score10: 8, Weight: 1},
		{PaperID: "p9", Score10: 9, Weight: 1},
	}
}

const comparisonsJSON = `{"rubric_version":"rubric_v1","comparisons":[
{"anchor_id":"A1","judgement":"better","strength":"medium","rationale":"stronger framing"},
{"anchor_id":"A2","judgement":"better","strength":"medium","rationale":"clearer method"},
{"anchor_id":"A3","judgement":"tie","strength":"medium","rationale":"comparable depth"},
{"anchor_id":"A4","judgement":"worse","strength":"medium","rationale":"less rigorous"},
{"anchor_id":"A5","judgement":"better","strength":"medium","rationale":"more original"}
]}`

func TestReview_HappyPath(t *testing.T) {
	fake := &llmclient.FakeGateway{Responses: []string{comparisonsJSON, comparisonsJSON, comparisonsJSON}}
	c := &Critic{LLM: fake, Config: types.SamplingConfig{JSONRetries: 1}, ScoreInference: types.ScoreInferenceConfig{GridStep: 0.01}}

	story := types.Story{ProblemFraming: "gap", MethodSkeleton: "method", InnovationClaims: []string{"claim"}}
	tau := TauTable{TauMethodology: 1.0, TauNovelty: 1.0, TauStoryteller: 1.0}

	audit, err := c.Review(context.Background(), story, fixedAnchors(), map[types.PaperID]AnchorText{}, tau, 6.0, 7.5)
	require.NoError(t, err)
	require.Len(t, audit.Roles, 3)
	for _, r := range audit.Roles {
		assert.GreaterOrEqual(t, r.S, 1.0)
		assert.LessOrEqual(t, r.S, 10.0)
	}
}

func TestEvaluatePass_TwoOfThreeAboveQ75AndAvgAboveQ50(t *testing.T) {
	roles := map[types.Role]types.RoleAudit{
		types.RoleMethodology: {S: 8.0},
		types.RoleNovelty:     {S: 7.6},
		types.RoleStoryteller: {S: 5.0},
	}
	assert.True(t, evaluatePass(roles, 6.0, 7.5))
}

func TestEvaluatePass_FailsWhenAverageBelowQ50(t *testing.T) {
	roles := map[types.Role]types.RoleAudit{
		types.RoleMethodology: {S: 8.0},
		types.RoleNovelty:     {S: 8.0},
		types.RoleStoryteller: {S: 1.0},
	}
	assert.False(t, evaluatePass(roles, 6.0, 7.5))
}

func TestValidateComparisons_RejectsMissingAnchor(t *testing.T) {
	comparisons := []types.Comparison{{AnchorID: "A1", Judgement: types.JudgementBetter, Strength: types.StrengthWeak, Rationale: "ok"}}
	err := validateComparisons(comparisons, []types.LocalAlias{"A1", "A2"})
	require.Error(t, err)
}

func TestValidateComparisons_RejectsForbiddenTerm(t *testing.T) {
	comparisons := []types.Comparison{{AnchorID: "A1", Judgement: types.JudgementBetter, Strength: types.StrengthWeak, Rationale: "scores 9/10"}}
	err := validateComparisons(comparisons, []types.LocalAlias{"A1"})
	require.Error(t, err)
}

func TestBuildStoryCard_RespectsLengthCaps(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	s := types.Story{ProblemFraming: string(long), MethodSkeleton: string(long), InnovationClaims: []string{string(long)}}
	card := BuildStoryCard(s)
	assert.LessOrEqual(t, len([]rune(card.Problem)), types.MaxProblemChars)
	assert.LessOrEqual(t, len([]rune(card.Method)), types.MaxMethodChars)
	assert.LessOrEqual(t, len([]rune(card.Contrib)), types.MaxContribChars)
}

func TestBuildStoryCard_Idempotent(t *testing.T) {
	s := types.Story{ProblemFraming: "p", MethodSkeleton: "m", InnovationClaims: []string{"c"}}
	first := BuildStoryCard(s)
	second := BuildStoryCard(types.Story{ProblemFraming: first.Problem, MethodSkeleton: first.Method, InnovationClaims: []string{first.Contrib}})
	assert.Equal(t, first, second)
}

func TestSelectAnchors_CapsAtMaxInitial(t *testing.T) {
	var papers []types.Paper
	for i := 0; i < 20; i++ {
		papers = append(papers, types.Paper{
			PaperID:     types.PaperID(string(rune('a' + i))),
			ReviewStats: &types.ReviewStats{AvgScore10: float64(i%9) + 1, ReviewCount: 3, Dispersion10: 1},
		})
	}
	anchors := SelectAnchors(papers, DefaultQuantiles, 11, 2)
	assert.LessOrEqual(t, len(anchors), 11)
}

func TestJudgeRole_DensifiesAroundProvisionalScore(t *testing.T) {
	anchors := fixedAnchors() // scores 5,6,7,8,9
	texts := map[types.PaperID]AnchorText{
		"p5": {Problem: "p5 problem", Method: "p5 method", Contrib: "p5 contrib"},
		"p6": {Problem: "p6 problem", Method: "p6 method", Contrib: "p6 contrib"},
		"p7": {Problem: "p7 problem", Method: "p7 method", Contrib: "p7 contrib"},
		"p8": {Problem: "p8 problem", Method: "p8 method", Contrib: "p8 contrib"},
		"p9": {Problem: "p9 problem", Method: "p9 method", Contrib: "p9 contrib"},
	}
	aliasOrder, aliasToAnchor, anchorCards := aliasAnchors(anchors, texts)
	require.Len(t, aliasOrder, 5)

	// Judgements rise with anchor score10 (worse against the weakest anchor,
	// better against the strongest), the opposite of the expected monotonic
	// pattern, guaranteeing MonotonicViolations >= 1 and triggering densify
	// regardless of the exact fitted score.
	risingJSON := `{"rubric_version":"rubric_v1","comparisons":[
{"anchor_id":"A1","judgement":"worse","strength":"medium","rationale":"far below"},
{"anchor_id":"A2","judgement":"worse","strength":"medium","rationale":"below"},
{"anchor_id":"A3","judgement":"tie","strength":"medium","rationale":"comparable"},
{"anchor_id":"A4","judgement":"better","strength":"medium","rationale":"above"},
{"anchor_id":"A5","judgement":"better","strength":"medium","rationale":"far above"}
]}`

	fake := &llmclient.FakeGateway{Responses: []string{risingJSON}}
	c := &Critic{
		LLM:            fake,
		Config:         types.SamplingConfig{JSONRetries: 1},
		ScoreInference: types.ScoreInferenceConfig{GridStep: 0.5},
		Densify:        types.DensifyConfig{Enable: true, LossThreshold: 1e9, MinAvgConfidence: 0, BucketSize: 1, BucketCount: 1},
	}

	tau := TauTable{TauMethodology: 1.0, TauNovelty: 1.0, TauStoryteller: 1.0}
	audit, err := c.judgeRole(context.Background(), types.RoleMethodology, types.BlindCard{Problem: "story problem"}, anchorCards, aliasOrder, aliasToAnchor, anchors, texts, tau.ForRole(types.RoleMethodology))
	require.NoError(t, err)
	// risingJSON only covers A1-A5, so once densification expands the alias
	// set the reused fake response fails validation and judgeRole falls back
	// to the first round's (non-densified) audit rather than erroring out.
	assert.False(t, audit.Densified)

	require.GreaterOrEqual(t, len(fake.Calls), 2, "densification must issue a second LLM call")
	firstPrompt := fake.Calls[0].Messages[0].Content
	secondPrompt := fake.Calls[1].Messages[0].Content
	assert.NotEqual(t, firstPrompt, secondPrompt, "the densified round's alias set must differ from the first round's")
	assert.Contains(t, secondPrompt, "Anchor A6:", "densification must add bucket anchors beyond the original five")
}

func TestDensifyAnchors_AddsBucketsAroundCenterAndCapsTotal(t *testing.T) {
	anchors := fixedAnchors()
	texts := map[types.PaperID]AnchorText{
		"p5": {Problem: "p5 problem"},
		"p6": {Problem: "p6 problem"},
		"p7": {Problem: "p7 problem"},
		"p8": {Problem: "p8 problem"},
		"p9": {Problem: "p9 problem"},
	}
	c := &Critic{Densify: types.DensifyConfig{BucketSize: 1, BucketCount: 1}, AnchorMaxTotal: 6}

	densified, densifiedTexts := c.densifyAnchors(anchors, texts, 7.0)
	assert.LessOrEqual(t, len(densified), 6, "AnchorMaxTotal must cap the merged anchor set")
	assert.Greater(t, len(densified), len(anchors), "densification must add at least one bucket anchor")
	for _, a := range densified {
		_, ok := densifiedTexts[a.PaperID]
		assert.True(t, ok, "every densified anchor must resolve to blind text")
	}
}

func TestPassThresholds_Quantiles(t *testing.T) {
	papers := []types.Paper{
		{ReviewStats: &types.ReviewStats{AvgScore10: 5}},
		{ReviewStats: &types.ReviewStats{AvgScore10: 6}},
		{ReviewStats: &types.ReviewStats{AvgScore10: 7}},
		{ReviewStats: &types.ReviewStats{AvgScore10: 8}},
		{ReviewStats: &types.ReviewStats{AvgScore10: 9}},
	}
	q50, q75 := PassThresholds(papers)
	assert.InDelta(t, 7.0, q50, 1e-9)
	assert.InDelta(t, 8.0, q75, 1e-9)
}
