// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package coach implements the Coach: one non-scoring LLM call that returns
// field-level edit suggestions after critic scoring. It never alters
// scores.
package coach

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pdiddy/idea2paper/internal/gateway"
	"github.com/pdiddy/idea2paper/pkg/types"
)

// Coach produces field-level feedback on a scored Story.
type Coach struct {
	LLM    gateway.LLMGateway
	Config types.SamplingConfig
	Model  string
}

// Advise reviews a scored Story's critic audit and proposes concrete
// field-level edits, one non-scoring LLM call per invocation.
func (c *Coach) Advise(ctx context.Context, s types.Story, audit types.CriticAudit) (types.CoachResult, error) {
	prompt := buildPrompt(s, audit)
	retries := c.Config.JSONRetries
	if retries <= 0 {
		retries = 2
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		p := prompt
		if attempt > 0 {
			p = fmt.Sprintf("%s\n\nPrevious response was invalid (%v). Respond again with ONLY the JSON object.", prompt, lastErr)
		}
		resp, err := c.LLM.Chat(ctx, gateway.ChatRequest{
			Messages:       []gateway.ChatMessage{{Role: "user", Content: p}},
			Model:          c.Model,
			Temperature:    c.Config.CoachTemperature,
			MaxTokens:      2048,
			ResponseFormat: gateway.ResponseFormatJSON,
		})
		if err != nil {
			return types.CoachResult{}, fmt.Errorf("coach llm call: %w", err)
		}

		var out types.CoachResult
		if err := json.Unmarshal([]byte(resp.Text), &out); err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}

	return types.CoachResult{}, &types.InvalidOutput{Stage: "coach", Reason: lastErr.Error(), Attempt: retries + 1}
}

func buildPrompt(s types.Story, audit types.CriticAudit) string {
	scores, _ := json.Marshal(audit.Roles)
	return fmt.Sprintf(`Given this Story and its critic scores, suggest field-level edits without re-scoring.
Story title: %s
Abstract: %s
Problem framing: %s
Method skeleton: %s
Innovation claims: %v
Experiments plan: %s

Critic role scores: %s

Respond as JSON: {"field_feedback":{"title":...,"abstract":...,"problem_framing":...,"method_skeleton":...,"innovation_claims":...,"experiments_plan":...},"suggested_edits":[{"field":...,"action":...,"content":...}],"priority":[...]}`,
		s.Title, s.Abstract, s.ProblemFraming, s.MethodSkeleton, s.InnovationClaims, s.ExperimentsPlan, scores)
}
