// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resultbundle writes the final results/<run_id>/{final_story.json,
// pipeline_result.json, manifest.json} artifact bundle for a completed run.
// Grounded on the teacher's internal/draft load/save helpers (structured
// file read/write around a fixed project-directory layout), adapted from
// YAML to JSON since these artifacts are the program's own contract with
// itself, not a hand-edited author-facing document.
package resultbundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdiddy/idea2paper/pkg/types"
)

const (
	finalStoryFile     = "final_story.json"
	pipelineResultFile = "pipeline_result.json"
	manifestFile       = "manifest.json"
)

// Manifest records what a results bundle contains, so a downstream reader
// can validate presence without re-parsing every file.
type Manifest struct {
	RunID       string `json:"run_id"`
	Success     bool   `json:"success"`
	HasStory    bool   `json:"has_final_story"`
	GeneratedAt string `json:"generated_at"`
}

// Write creates results/<runID>/ under baseResultsDir and writes the
// pipeline result, the final story (if any), and a manifest.
func Write(baseResultsDir, runID string, result types.PipelineResult, generatedAt string) error {
	dir := filepath.Join(baseResultsDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, pipelineResultFile), result); err != nil {
		return fmt.Errorf("writing pipeline result: %w", err)
	}

	if result.FinalStory != nil {
		if err := writeJSON(filepath.Join(dir, finalStoryFile), result.FinalStory); err != nil {
			return fmt.Errorf("writing final story: %w", err)
		}
	}

	manifest := Manifest{
		RunID:       runID,
		Success:     result.Success,
		HasStory:    result.FinalStory != nil,
		GeneratedAt: generatedAt,
	}
	if err := writeJSON(filepath.Join(dir, manifestFile), manifest); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Read loads a previously written pipeline result bundle back into memory,
// primarily for tests and for resuming a manifest inspection.
func Read(baseResultsDir, runID string) (types.PipelineResult, error) {
	dir := filepath.Join(baseResultsDir, runID)
	data, err := os.ReadFile(filepath.Join(dir, pipelineResultFile))
	if err != nil {
		return types.PipelineResult{}, fmt.Errorf("reading pipeline result: %w", err)
	}
	var result types.PipelineResult
	if err := json.Unmarshal(data, &result); err != nil {
		return types.PipelineResult{}, fmt.Errorf("parsing pipeline result: %w", err)
	}
	return result, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}
