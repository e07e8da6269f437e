// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/idea2paper/internal/embedclient"
	"github.com/pdiddy/idea2paper/internal/kgstore"
	"github.com/pdiddy/idea2paper/pkg/types"
)

func testGraph() types.Graph {
	return types.Graph{
		Ideas: []types.Idea{
			{IdeaID: "i1", Description: "using reinforcement learning to optimize llm inference efficiency", PatternIDs: []types.PatternID{"p1"}},
			{IdeaID: "i2", Description: "a totally unrelated idea about gardening tools", PatternIDs: []types.PatternID{"p2"}},
		},
		Patterns: []types.Pattern{
			{PatternID: "p1", Name: "rl-inference", ClusterSize: 20, Domain: "d1", SubDomains: []string{"inference", "reinforcement learning"}},
			{PatternID: "p2", Name: "gardening", ClusterSize: 5, Domain: "d2"},
		},
		Domains: []types.Domain{
			{DomainID: "d1", Name: "systems", SubDomains: []string{"inference", "reinforcement learning"}},
			{DomainID: "d2", Name: "hobbies", SubDomains: []string{"gardening"}},
		},
		Papers: []types.Paper{
			{PaperID: "pa1", Title: "reinforcement learning for llm inference", PatternID: "p1", DomainID: "d1",
				ReviewStats: &types.ReviewStats{AvgScore10: 8, ReviewCount: 4, Dispersion10: 1}},
		},
		UsesPattern: []types.EdgeUsesPattern{{PaperID: "pa1", PatternID: "p1", Quality: 0.9}},
		WorksWellIn: []types.EdgeWorksWellIn{
			{PatternID: "p1", DomainID: "d1", Effectiveness: 0.6, Confidence: 0.9},
			{PatternID: "p2", DomainID: "d2", Effectiveness: 0.4, Confidence: 0.7},
		},
	}
}

func newEngine() *Engine {
	return &Engine{
		Store:  kgstore.FromGraph(testGraph()),
		Config: types.RecallConfig{Path1Weight: 0.4, Path2Weight: 0.2, Path3Weight: 0.4, FinalTopK: 10, CoarseRecallSize: 100, FineTopK: 10, DomainTopM: 5, NormalizePaths: true},
	}
}

func TestRecall_RanksRelevantPatternFirst(t *testing.T) {
	e := newEngine()
	scored, audit, err := e.Recall(context.Background(), "Using reinforcement learning to optimize LLM inference efficiency")
	require.NoError(t, err)
	require.NotEmpty(t, scored)
	assert.Equal(t, types.PatternID("p1"), scored[0].PatternID)
	assert.True(t, audit.Path1.Degraded, "no embedding gateway configured, path1 should degrade to jaccard-only")
}

func TestRecall_RespectsFinalTopK(t *testing.T) {
	e := newEngine()
	e.Config.FinalTopK = 1
	scored, _, err := e.Recall(context.Background(), "reinforcement learning inference")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(scored), 1)
}

func TestRecall_UniquePatternsAndNonNegativeScores(t *testing.T) {
	e := newEngine()
	scored, _, err := e.Recall(context.Background(), "reinforcement learning inference")
	require.NoError(t, err)
	seen := map[types.PatternID]bool{}
	for _, s := range scored {
		assert.False(t, seen[s.PatternID], "pattern %s duplicated in recall output", s.PatternID)
		seen[s.PatternID] = true
		assert.GreaterOrEqual(t, s.Score, 0.0)
	}
}

func TestRecall_EmptyGraphReturnsEmptyReason(t *testing.T) {
	e := &Engine{Store: kgstore.FromGraph(types.Graph{}), Config: types.RecallConfig{FinalTopK: 10}}
	scored, audit, err := e.Recall(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, scored)
	assert.Equal(t, "no_candidate_patterns", audit.EmptyReason)
}

func TestRecall_Path2UsesCosineWhenEmbedderConfigured(t *testing.T) {
	e := newEngine()
	e.Embed = embedclient.FakeGateway{}
	e.Model = "fake"

	scores, audit := e.path2Domain(context.Background(), "reinforcement learning inference systems")
	require.False(t, audit.Degraded, "with an embedder configured, path2 should not degrade to jaccard-only")
	assert.NotEmpty(t, audit.TopDomains)
	assert.Contains(t, scores, types.PatternID("p1"))
}

func TestRecall_Path2DegradesWithoutEmbedder(t *testing.T) {
	e := newEngine()
	_, audit := e.path2Domain(context.Background(), "reinforcement learning inference systems")
	assert.True(t, audit.Degraded, "with no embedder configured, path2 should degrade to jaccard-only")
}

func TestJaccard(t *testing.T) {
	a := tokenSet("the quick brown fox")
	b := tokenSet("the quick red fox")
	assert.InDelta(t, 3.0/5.0, jaccard(a, b), 1e-9)
}
