// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package story implements the Story Generator: produces a structured Story
// from a Pattern, in either initial or refinement mode, enforcing strict
// JSON output with a bounded repair-prompt loop on parse failure.
package story

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/idea2paper/internal/gateway"
	"github.com/pdiddy/idea2paper/pkg/types"
)

// Generator produces Stories from recalled Patterns.
type Generator struct {
	LLM    gateway.LLMGateway
	Config types.SamplingConfig
	Model  string
}

// RefinementInputs carries the optional guidance available on a refinement
// call. All fields are optional; a zero value means "not supplied".
type RefinementInputs struct {
	PreviousStory      *types.Story
	CoachEdits         []types.SuggestedEdit
	FusedIdea          *types.FusedIdea
	ReflectionGuidance []string
	InjectedTricks     []string
	Constraints        *types.PivotConstraint
}

// Generate drafts a Story for patternID. When refinement is nil the call
// runs in Initial mode; otherwise it runs in Refinement mode, instructing
// the model to show concept co-evolution rather than stacking edits.
func (g *Generator) Generate(ctx context.Context, patternID types.PatternID, info types.Pattern, ideaBrief string, refinement *RefinementInputs) (types.Story, error) {
	prompt := buildPrompt(info, ideaBrief, refinement)
	retries := g.Config.JSONRetries
	if retries <= 0 {
		retries = 2
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		p := prompt
		if attempt > 0 {
			p = fmt.Sprintf("%s\n\nYour previous response was not valid JSON matching the required Story schema (%v). Respond again with ONLY the JSON object.", prompt, lastErr)
		}
		resp, err := g.LLM.Chat(ctx, gateway.ChatRequest{
			Messages:       []gateway.ChatMessage{{Role: "user", Content: p}},
			Model:          g.Model,
			Temperature:    temperature(g.Config, refinement),
			MaxTokens:      4096,
			ResponseFormat: gateway.ResponseFormatJSON,
		})
		if err != nil {
			return types.Story{}, fmt.Errorf("story generation call: %w", err)
		}

		var out types.Story
		if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &out); err != nil {
			lastErr = err
			continue
		}
		if err := validate(out); err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}

	return types.Story{}, &types.InvalidOutput{Stage: "story_generation", Reason: lastErr.Error(), Attempt: retries + 1}
}

func temperature(cfg types.SamplingConfig, refinement *RefinementInputs) float64 {
	if cfg.StoryTemperature != 0 {
		return cfg.StoryTemperature
	}
	if refinement != nil {
		return 0.7
	}
	return 0.7
}

func validate(s types.Story) error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("story missing title")
	}
	if strings.TrimSpace(s.Abstract) == "" {
		return fmt.Errorf("story missing abstract")
	}
	if len(s.InnovationClaims) == 0 {
		return fmt.Errorf("story missing innovation_claims")
	}
	return nil
}

func buildPrompt(info types.Pattern, ideaBrief string, refinement *RefinementInputs) string {
	var b strings.Builder
	b.WriteString("Produce a research paper Story as a strict JSON object with fields: ")
	b.WriteString("title, abstract, problem_framing, gap_pattern, method_skeleton, innovation_claims (list of strings), experiments_plan.\n\n")
	b.WriteString(fmt.Sprintf("Pattern: %s\n", info.Name))
	b.WriteString(fmt.Sprintf("Representative ideas: %s\n", strings.Join(info.Summary.RepresentativeIdeas, "; ")))
	b.WriteString(fmt.Sprintf("Common problems: %s\n", strings.Join(info.Summary.CommonProblems, "; ")))
	b.WriteString(fmt.Sprintf("Solution approaches: %s\n", strings.Join(info.Summary.SolutionApproaches, "; ")))
	if len(info.SkeletonExamples) > 0 {
		b.WriteString(fmt.Sprintf("Skeleton examples: %s\n", strings.Join(info.SkeletonExamples, "; ")))
	}
	if ideaBrief != "" {
		b.WriteString(fmt.Sprintf("Idea brief: %s\n", ideaBrief))
	}

	problem := strings.Join(info.Summary.CommonProblems, "; ")
	solution := strings.Join(info.Summary.SolutionApproaches, "; ")
	b.WriteString("\n" + (Planner{}).Plan(problem, solution).Render())

	if refinement == nil {
		return b.String()
	}

	b.WriteString("\nThis is a REFINEMENT round. Show concept co-evolution across the previous and new Story, not mere field stacking.\n")
	if refinement.PreviousStory != nil {
		prev, _ := json.Marshal(refinement.PreviousStory)
		b.WriteString(fmt.Sprintf("Previous story: %s\n", prev))
	}
	for _, e := range refinement.CoachEdits {
		b.WriteString(fmt.Sprintf("Coach edit [%s/%s]: %s\n", e.Field, e.Action, e.Content))
	}
	if refinement.FusedIdea != nil {
		b.WriteString(fmt.Sprintf("Fused idea: concept_a=%q concept_b=%q fused=%q approach=%q\n",
			refinement.FusedIdea.ConceptA, refinement.FusedIdea.ConceptB, refinement.FusedIdea.FusedIdea, refinement.FusedIdea.FusionApproach))
	}
	for _, g := range refinement.ReflectionGuidance {
		b.WriteString(fmt.Sprintf("Reflection guidance: %s\n", g))
	}
	for _, t := range refinement.InjectedTricks {
		b.WriteString(fmt.Sprintf("Injected trick: %s\n", t))
	}
	if refinement.Constraints != nil {
		b.WriteString(fmt.Sprintf("Forbidden techniques: %s\n", strings.Join(refinement.Constraints.ForbiddenTechniques, "; ")))
		b.WriteString(fmt.Sprintf("Pivot direction: %s\n", refinement.Constraints.PivotDirection))
		if refinement.Constraints.DomainShift != "" {
			b.WriteString(fmt.Sprintf("Domain shift: %s\n", refinement.Constraints.DomainShift))
		}
	}
	return b.String()
}

// extractJSON trims common LLM wrapping (markdown code fences) around a
// JSON object so parse failures aren't caused by cosmetic wrapping.
func extractJSON(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
