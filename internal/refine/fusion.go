// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refine implements the Refinement Engine: the idea-fusion
// sub-routine, failure-map bookkeeping, and rollback decision used by the
// pipeline manager's iteration loop.
package refine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pdiddy/idea2paper/internal/gateway"
	"github.com/pdiddy/idea2paper/pkg/types"
)

// FusionEngine runs the two-pass idea-fusion + reflection sub-routine.
type FusionEngine struct {
	LLM    gateway.LLMGateway
	Config types.SamplingConfig
	Model  string
}

// Fuse runs the two-call idea-fusion sub-routine: one LLM call proposes a
// fusion of the current Story with the chosen Pattern, a second reflects on
// its quality. Callers should skip the attempt entirely when
// FusionQuality < FUSION_QUALITY_THRESHOLD.
func (f *FusionEngine) Fuse(ctx context.Context, story types.Story, pattern types.Pattern) (types.FusedIdea, types.FusionReflection, error) {
	retries := f.Config.JSONRetries
	if retries <= 0 {
		retries = 2
	}

	fusionPrompt := fmt.Sprintf(`Current story method: %s
Current story problem: %s
Candidate pattern: %s (representative ideas: %v)

Propose a fusion of the story's approach with this pattern. Respond as JSON:
{"concept_a":...,"concept_b":...,"fusion_approach":...,"fused_idea":...,"expected_benefits":...}`,
		story.MethodSkeleton, story.ProblemFraming, pattern.Name, pattern.Summary.RepresentativeIdeas)

	var fused types.FusedIdea
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		text, err := f.chatJSON(ctx, correctionPrompt(fusionPrompt, attempt, lastErr), 0.7, 1024)
		if err != nil {
			return types.FusedIdea{}, types.FusionReflection{}, fmt.Errorf("fusion llm call: %w", err)
		}
		if err := json.Unmarshal([]byte(text), &fused); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return types.FusedIdea{}, types.FusionReflection{}, &types.InvalidOutput{Stage: "fusion_proposal", Reason: lastErr.Error(), Attempt: retries + 1}
	}

	reflectionPrompt := fmt.Sprintf(`Judge this proposed idea fusion:
%+v

Respond as JSON: {"scores":{"concept_unity":...,"technical_soundness":...,"novelty_level":...,"narrative_clarity":...},"fusion_quality":...,"suggestions":[...]}`, fused)

	var reflection types.FusionReflection
	lastErr = nil
	for attempt := 0; attempt <= retries; attempt++ {
		text, err := f.chatJSON(ctx, correctionPrompt(reflectionPrompt, attempt, lastErr), 0, 512)
		if err != nil {
			return fused, types.FusionReflection{}, fmt.Errorf("fusion reflection llm call: %w", err)
		}
		if err := json.Unmarshal([]byte(text), &reflection); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return fused, types.FusionReflection{}, &types.InvalidOutput{Stage: "fusion_reflection", Reason: lastErr.Error(), Attempt: retries + 1}
	}

	return fused, reflection, nil
}

// chatJSON issues one JSON-mode LLM call and returns the raw response text.
func (f *FusionEngine) chatJSON(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	resp, err := f.LLM.Chat(ctx, gateway.ChatRequest{
		Messages:       []gateway.ChatMessage{{Role: "user", Content: prompt}},
		Model:          f.Model,
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: gateway.ResponseFormatJSON,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// correctionPrompt appends a repair instruction to prompt after a failed
// parse attempt, mirroring the story/critic/coach repair-prompt loop.
func correctionPrompt(prompt string, attempt int, lastErr error) string {
	if attempt == 0 {
		return prompt
	}
	return fmt.Sprintf("%s\n\nYour previous response was not valid JSON (%v). Respond again with ONLY the JSON object.", prompt, lastErr)
}
