// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resultbundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/idea2paper/pkg/types"
)

func TestWriteAndRead_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	story := &types.Story{Title: "T", Abstract: "A", InnovationClaims: []string{"c"}}
	result := types.PipelineResult{Success: true, FinalStory: story, Iterations: 1}

	require.NoError(t, Write(dir, "run-1", result, "2026-08-06T00:00:00Z"))

	_, err := os.Stat(filepath.Join(dir, "run-1", finalStoryFile))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "run-1", manifestFile))
	require.NoError(t, err)

	loaded, err := Read(dir, "run-1")
	require.NoError(t, err)
	assert.True(t, loaded.Success)
	require.NotNil(t, loaded.FinalStory)
	assert.Equal(t, "T", loaded.FinalStory.Title)
}

func TestWrite_SkipsStoryFileWhenNil(t *testing.T) {
	dir := t.TempDir()
	result := types.PipelineResult{Success: false, Reason: "no_candidate_patterns"}

	require.NoError(t, Write(dir, "run-2", result, "2026-08-06T00:00:00Z"))

	_, err := os.Stat(filepath.Join(dir, "run-2", finalStoryFile))
	assert.True(t, os.IsNotExist(err))
}
