// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipelinecfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_AppliesDefaults(t *testing.T) {
	v := New()

	cfg, err := Resolve(v)
	require.NoError(t, err)

	assert.Equal(t, 0.4, cfg.Recall.Path1Weight)
	assert.Equal(t, 10, cfg.Recall.FinalTopK)
	assert.Equal(t, 3, cfg.Refinement.MaxRefineIterations)
	assert.Equal(t, 0.75, cfg.Novelty.CollisionThreshold)
	assert.Len(t, cfg.Anchor.Quantiles, 7)
}

func TestResolve_EnvOverridesDefault(t *testing.T) {
	t.Setenv("IDEA2PAPER_RECALL_FINAL_TOP_K", "25")

	v := New()
	cfg, err := Resolve(v)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Recall.FinalTopK)
}
