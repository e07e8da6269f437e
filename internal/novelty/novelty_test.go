// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package novelty

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/idea2paper/internal/embedclient"
	"github.com/pdiddy/idea2paper/internal/vectorindex"
	"github.com/pdiddy/idea2paper/pkg/types"
)

func buildIndex(t *testing.T, ids []string, texts []string) *vectorindex.Index {
	t.Helper()
	idx, err := vectorindex.Open("")
	require.NoError(t, err)
	fake := embedclient.FakeGateway{}
	vectors, err := fake.Embed(context.Background(), texts, "")
	require.NoError(t, err)
	require.NoError(t, idx.Build(context.Background(), ids, vectors))
	return idx
}

func TestCheck_NoCollisionBelowThreshold(t *testing.T) {
	idx := buildIndex(t, []string{"p1"}, []string{"completely unrelated gardening topic"})
	v := &Verifier{Index: idx, Embed: embedclient.FakeGateway{}, Config: types.NoveltyConfig{Enable: true, CollisionThreshold: 0.75, Action: types.NoveltyActionPivot}}

	outcome, err := v.Check(context.Background(), types.Story{Title: "reinforcement learning inference", MethodSkeleton: "policy gradient tuning"})
	require.NoError(t, err)
	assert.False(t, outcome.Collision)
}

func TestCheck_CollisionPivotProducesConstraint(t *testing.T) {
	idx := buildIndex(t, []string{"p1"}, []string{"reinforcement learning inference policy gradient tuning"})
	v := &Verifier{
		Index:  idx,
		Embed:  embedclient.FakeGateway{},
		Corpus: map[string]CorpusEntry{"p1": {PaperID: "p1", Techniques: []string{"policy gradient"}}},
		Config: types.NoveltyConfig{Enable: true, CollisionThreshold: 0.3, Action: types.NoveltyActionPivot},
	}

	outcome, err := v.Check(context.Background(), types.Story{Title: "reinforcement learning inference", MethodSkeleton: "policy gradient tuning"})
	require.NoError(t, err)
	assert.True(t, outcome.Collision)
	require.NotNil(t, outcome.Pivot)
	assert.Contains(t, outcome.Pivot.ForbiddenTechniques, "policy gradient")
}

func TestCheck_CollisionFailReturnsError(t *testing.T) {
	idx := buildIndex(t, []string{"p1"}, []string{"reinforcement learning inference policy gradient tuning"})
	v := &Verifier{
		Index:  idx,
		Embed:  embedclient.FakeGateway{},
		Corpus: map[string]CorpusEntry{"p1": {PaperID: "p1"}},
		Config: types.NoveltyConfig{Enable: true, CollisionThreshold: 0.3, Action: types.NoveltyActionFail},
	}

	_, err := v.Check(context.Background(), types.Story{Title: "reinforcement learning inference", MethodSkeleton: "policy gradient tuning"})
	require.Error(t, err)
	var collision *types.CollisionDetected
	assert.ErrorAs(t, err, &collision)
}

func TestCheck_DisabledSkips(t *testing.T) {
	v := &Verifier{Config: types.NoveltyConfig{Enable: false}}
	outcome, err := v.Check(context.Background(), types.Story{})
	require.NoError(t, err)
	assert.False(t, outcome.Collision)
}
