// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/idea2paper/internal/coach"
	"github.com/pdiddy/idea2paper/internal/critic"
	"github.com/pdiddy/idea2paper/internal/kgstore"
	"github.com/pdiddy/idea2paper/internal/llmclient"
	"github.com/pdiddy/idea2paper/internal/recall"
	"github.com/pdiddy/idea2paper/internal/refine"
	"github.com/pdiddy/idea2paper/internal/selector"
	"github.com/pdiddy/idea2paper/internal/story"
	"github.com/pdiddy/idea2paper/pkg/types"
)

func reviewStats(score float64) *types.ReviewStats {
	return &types.ReviewStats{AvgScore10: score, ReviewCount: 4, Dispersion10: 1}
}

func onePatternGraph() types.Graph {
	return types.Graph{
		Ideas: []types.Idea{
			{IdeaID: "i1", Description: "reinforcement learning optimizes inference efficiency", PatternIDs: []types.PatternID{"P1"}},
		},
		Patterns: []types.Pattern{
			{PatternID: "P1", Name: "RL Efficiency", ClusterSize: 10, Domain: "D1", CommonTricks: []string{"cache reuse"}},
		},
		Domains: []types.Domain{
			{DomainID: "D1", Name: "systems", PaperCount: 5},
		},
		Papers: []types.Paper{
			{PaperID: "p5", Title: "paper five", PatternID: "P1", DomainID: "D1", ReviewStats: reviewStats(5)},
			{PaperID: "p6", Title: "paper six", PatternID: "P1", DomainID: "D1", ReviewStats: reviewStats(6)},
			{PaperID: "p7", Title: "paper seven", PatternID: "P1", DomainID: "D1", ReviewStats: reviewStats(7)},
			{PaperID: "p8", Title: "paper eight", PatternID: "P1", DomainID: "D1", ReviewStats: reviewStats(8)},
			{PaperID: "p9", Title: "paper nine", PatternID: "P1", DomainID: "D1", ReviewStats: reviewStats(9)},
		},
	}
}

const validStoryJSON = `{"title":"T","abstract":"A","problem_framing":"P","gap_pattern":"G","method_skeleton":"M","innovation_claims":["c1"],"experiments_plan":"E"}`

const allBetterJSON = `{"rubric_version":"rubric_v1","comparisons":[
{"anchor_id":"A1","judgement":"better","strength":"strong","rationale":"stronger framing"},
{"anchor_id":"A2","judgement":"better","strength":"strong","rationale":"clearer method"},
{"anchor_id":"A3","judgement":"better","strength":"strong","rationale":"more rigorous"},
{"anchor_id":"A4","judgement":"better","strength":"strong","rationale":"deeper analysis"},
{"anchor_id":"A5","judgement":"better","strength":"strong","rationale":"more original"}
]}`

const coachJSON = `{"field_feedback":{"title":"tighten"},"suggested_edits":[{"field":"title","action":"rewrite","content":"shorter title"}],"priority":["title"]}`

func newManager(t *testing.T, responses []string) (*Manager, *llmclient.FakeGateway) {
	t.Helper()
	store := kgstore.FromGraph(onePatternGraph())
	fake := &llmclient.FakeGateway{Responses: responses}

	return &Manager{
		Store:    store,
		Recall:   &recall.Engine{Store: store},
		Selector: &selector.Selector{},
		Story:    &story.Generator{LLM: fake, Config: types.SamplingConfig{JSONRetries: 1}},
		Critic:   &critic.Critic{LLM: fake, Config: types.SamplingConfig{JSONRetries: 1}, ScoreInference: types.ScoreInferenceConfig{GridStep: 0.01}},
		Coach:    &coach.Coach{LLM: fake, Config: types.SamplingConfig{JSONRetries: 1}},
		Fusion:   &refine.FusionEngine{LLM: fake},
		Tau:      critic.TauTable{TauMethodology: 1.0, TauNovelty: 1.0, TauStoryteller: 1.0},
	}, fake
}

func TestRun_PassesOnFirstIteration(t *testing.T) {
	m, _ := newManager(t, []string{validStoryJSON, allBetterJSON, allBetterJSON, allBetterJSON, coachJSON})

	result, err := m.Run(context.Background(), "reinforcement learning optimizes inference efficiency", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.FinalStory)
	assert.Equal(t, "T", result.FinalStory.Title)
	assert.Equal(t, 1, result.Iterations)
	assert.Len(t, result.ReviewHistory, 1)
	assert.True(t, result.ReviewHistory[0].Pass.Passed)
}

func TestRun_EmptyRecallReturnsReason(t *testing.T) {
	store := kgstore.FromGraph(types.Graph{})
	m := &Manager{
		Store:    store,
		Recall:   &recall.Engine{Store: store},
		Selector: &selector.Selector{},
	}

	result, err := m.Run(context.Background(), "an idea nothing in the graph matches", "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "no_candidate_patterns", result.Reason)
}

func TestRun_FallsBackToBestOnExhaustedRetries(t *testing.T) {
	// Every critic call returns a "worse" verdict, so the story never passes;
	// after MAX_REFINE iterations the pipeline must fall back to the best
	// story it saw rather than erroring out.
	const allWorseJSON = `{"rubric_version":"rubric_v1","comparisons":[
{"anchor_id":"A1","judgement":"worse","strength":"strong","rationale":"weaker framing"},
{"anchor_id":"A2","judgement":"worse","strength":"strong","rationale":"unclear method"},
{"anchor_id":"A3","judgement":"worse","strength":"strong","rationale":"less rigorous"},
{"anchor_id":"A4","judgement":"worse","strength":"strong","rationale":"shallow analysis"},
{"anchor_id":"A5","judgement":"worse","strength":"strong","rationale":"less original"}
]}`

	responses := []string{
		validStoryJSON,                          // round 1 generate
		allWorseJSON, allWorseJSON, allWorseJSON, // round 1 critic (3 roles)
		coachJSON,                                // round 1 coach
		allWorseJSON, allWorseJSON,               // fusion proposal + reflection
		validStoryJSON,                           // injected round generate
		allWorseJSON, allWorseJSON, allWorseJSON, // injected round critic (3 roles)
		coachJSON, // injected round coach
	}

	m, _ := newManager(t, responses)
	m.Config.Refinement.MaxRefineIterations = 1

	result, err := m.Run(context.Background(), "reinforcement learning optimizes inference efficiency", "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "fallback_best", result.Reason)
	require.NotNil(t, result.FinalStory)
	assert.True(t, result.FinalStorySource.IsBestAcrossIterations)
}

func TestAnchorTexts_NeverLeaksPaperTitle(t *testing.T) {
	// onePatternGraph's Pattern carries no Summary.CommonProblems, the case
	// that used to fall back to the anchor paper's real title.
	store := kgstore.FromGraph(onePatternGraph())
	m := &Manager{Store: store}

	anchors := []types.AnchorSummary{{PaperID: "p5"}, {PaperID: "p6"}}
	texts := m.anchorTexts(anchors)

	require.Len(t, texts, 2)
	for paperID, text := range texts {
		paper, ok := store.PaperByID(paperID)
		require.True(t, ok)
		assert.NotContains(t, text.Problem, paper.Title)
		assert.NotEmpty(t, text.Problem)
	}
}

func TestRun_ThreadsCoachEditsIntoInjectedRound(t *testing.T) {
	const allWorseJSON = `{"rubric_version":"rubric_v1","comparisons":[
{"anchor_id":"A1","judgement":"worse","strength":"strong","rationale":"weaker framing"},
{"anchor_id":"A2","judgement":"worse","strength":"strong","rationale":"unclear method"},
{"anchor_id":"A3","judgement":"worse","strength":"strong","rationale":"less rigorous"},
{"anchor_id":"A4","judgement":"worse","strength":"strong","rationale":"shallow analysis"},
{"anchor_id":"A5","judgement":"worse","strength":"strong","rationale":"less original"}
]}`

	responses := []string{
		validStoryJSON,                          // round 1 generate
		allWorseJSON, allWorseJSON, allWorseJSON, // round 1 critic (3 roles)
		coachJSON,                                // round 1 coach
		allWorseJSON, allWorseJSON,               // fusion proposal + reflection
		validStoryJSON,                           // injected round generate
		allWorseJSON, allWorseJSON, allWorseJSON, // injected round critic (3 roles)
		coachJSON, // injected round coach
	}

	m, fake := newManager(t, responses)
	m.Config.Refinement.MaxRefineIterations = 1

	_, err := m.Run(context.Background(), "reinforcement learning optimizes inference efficiency", "")
	require.NoError(t, err)

	// Round 1's coach (coachJSON) suggests rewriting the title to "shorter
	// title"; the injected round's story-generation prompt must carry that
	// edit forward rather than discarding the coach's advice.
	require.Len(t, fake.Calls, len(responses))
	injectedGeneratePrompt := fake.Calls[7].Messages[0].Content
	assert.Contains(t, injectedGeneratePrompt, "shorter title")
}
