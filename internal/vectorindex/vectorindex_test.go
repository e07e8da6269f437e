// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{name: "identical vectors", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1.0},
		{name: "orthogonal vectors", a: []float64{1, 0}, b: []float64{0, 1}, want: 0.0},
		{name: "opposite vectors", a: []float64{1, 2, 3}, b: []float64{-1, -2, -3}, want: -1.0},
		{name: "zero magnitude vector", a: []float64{0, 0, 0}, b: []float64{1, 2, 3}, want: 0.0},
		{name: "empty vectors", a: []float64{}, b: []float64{}, want: 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestIndex_SearchOrdering(t *testing.T) {
	idx := &Index{}
	require.NoError(t, idx.Build(context.Background(),
		[]string{"low", "high", "medium"},
		[][]float64{{0, 1, 0}, {1, 0, 0}, {1, 1, 0}},
	))

	results := idx.Search(context.Background(), []float64{1, 0, 0}, 3)
	require.Len(t, results, 3)
	assert.Equal(t, "high", results[0].ID)
	assert.Equal(t, "medium", results[1].ID)
	assert.Equal(t, "low", results[2].ID)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestIndex_SearchTopK(t *testing.T) {
	idx := &Index{}
	require.NoError(t, idx.Build(context.Background(),
		[]string{"a", "b", "c", "d", "e"},
		[][]float64{{1, 0, 0}, {0.9, 0.1, 0}, {0.5, 0.5, 0}, {0.1, 0.9, 0}, {0, 1, 0}},
	))

	results := idx.Search(context.Background(), []float64{1, 0, 0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestIndex_SearchEmpty(t *testing.T) {
	idx := &Index{}
	assert.Empty(t, idx.Search(context.Background(), []float64{1, 0}, 5))

	require.NoError(t, idx.Build(context.Background(), nil, nil))
	assert.Empty(t, idx.Search(context.Background(), []float64{1, 0}, 5))
}

func TestIndex_BuildLengthMismatch(t *testing.T) {
	idx := &Index{}
	err := idx.Build(context.Background(), []string{"a", "b"}, [][]float64{{1, 0}})
	require.Error(t, err)
}

func TestOpen_InMemoryPersistsNothing(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Build(context.Background(), []string{"x"}, [][]float64{{1, 0}}))
	assert.Len(t, idx.Search(context.Background(), []float64{1, 0}, 1), 1)
}

func TestOpen_BadgerRoundTrip(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, idx.Build(context.Background(), []string{"p1", "p2"}, [][]float64{{1, 0}, {0, 1}}))
	require.NoError(t, idx.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	results := reopened.Search(context.Background(), []float64{1, 0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].ID)
}
