// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package selector implements the Pattern Selector: an LLM-scored
// three-dimensional classification (stability, novelty, domain-distance) of
// recalled Patterns, with a deterministic rule-based fallback on LLM
// failure.
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pdiddy/idea2paper/internal/gateway"
	"github.com/pdiddy/idea2paper/pkg/types"
)

// Selector ranks recalled Patterns along three axes.
type Selector struct {
	LLM    gateway.LLMGateway
	Config types.SelectorConfig
	Model  string
}

type llmScoreResponse struct {
	Scores []struct {
		PatternID      string  `json:"pattern_id"`
		Stability      float64 `json:"stability"`
		Novelty        float64 `json:"novelty"`
		DomainDistance float64 `json:"domain_distance"`
	} `json:"scores"`
}

// Select scores up to TopN recalled Patterns and ranks them along stability
// (desc), novelty (desc), domain_distance (asc).
func (s *Selector) Select(ctx context.Context, recalled []types.PatternScore, userIdea string, ideaBrief string) (types.SelectorRanking, error) {
	topN := s.Config.TopN
	if topN <= 0 {
		topN = 20
	}
	if len(recalled) > topN {
		recalled = recalled[:topN]
	}

	scores := map[types.PatternID]types.SelectorScore{}
	if s.LLM != nil {
		llmScores, err := s.scoreViaLLM(ctx, recalled, userIdea, ideaBrief)
		if err == nil {
			scores = llmScores
		}
	}
	for _, p := range recalled {
		if _, ok := scores[p.PatternID]; !ok {
			scores[p.PatternID] = ruleBasedScore(p.Info)
		}
	}

	return rank(recalled, scores), nil
}

func (s *Selector) scoreViaLLM(ctx context.Context, recalled []types.PatternScore, userIdea, ideaBrief string) (map[types.PatternID]types.SelectorScore, error) {
	prompt := buildPrompt(recalled, userIdea, ideaBrief)
	resp, err := s.LLM.Chat(ctx, gateway.ChatRequest{
		Messages:       []gateway.ChatMessage{{Role: "user", Content: prompt}},
		Model:          s.Model,
		Temperature:    0,
		MaxTokens:      2048,
		ResponseFormat: gateway.ResponseFormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("selector llm call: %w", err)
	}

	var parsed llmScoreResponse
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return nil, fmt.Errorf("parsing selector response: %w", err)
	}

	out := make(map[types.PatternID]types.SelectorScore, len(parsed.Scores))
	for _, sc := range parsed.Scores {
		out[types.PatternID(sc.PatternID)] = types.SelectorScore{
			Stability:      clip01(sc.Stability),
			Novelty:        clip01(sc.Novelty),
			DomainDistance: clip01(sc.DomainDistance),
		}
	}
	return out, nil
}

func buildPrompt(recalled []types.PatternScore, userIdea, ideaBrief string) string {
	prompt := fmt.Sprintf("User idea: %s\n", userIdea)
	if ideaBrief != "" {
		prompt += fmt.Sprintf("Idea brief: %s\n", ideaBrief)
	}
	prompt += "For each pattern below, return stability, novelty, and domain_distance in [0,1]. Respond as JSON: {\"scores\":[{\"pattern_id\":...,\"stability\":...,\"novelty\":...,\"domain_distance\":...}]}\n\n"
	for _, p := range recalled {
		prompt += fmt.Sprintf("- pattern_id=%s name=%q cluster_size=%d domain=%s\n", p.PatternID, p.Info.Name, p.Info.ClusterSize, p.Info.Domain)
	}
	return prompt
}

// ruleBasedScore is the deterministic fallback used when the LLM call fails:
// stability derived from cluster size, novelty as its complement,
// domain_distance pinned at the neutral midpoint.
func ruleBasedScore(pattern types.Pattern) types.SelectorScore {
	stability := clip01(float64(pattern.ClusterSize) / 50)
	return types.SelectorScore{
		Stability:      stability,
		Novelty:        1 - stability,
		DomainDistance: 0.5,
	}
}

func rank(recalled []types.PatternScore, scores map[types.PatternID]types.SelectorScore) types.SelectorRanking {
	ids := make([]types.PatternID, len(recalled))
	for i, p := range recalled {
		ids[i] = p.PatternID
	}

	stability := append([]types.PatternID(nil), ids...)
	novelty := append([]types.PatternID(nil), ids...)
	domainDistance := append([]types.PatternID(nil), ids...)

	sort.SliceStable(stability, func(i, j int) bool { return scores[stability[i]].Stability > scores[stability[j]].Stability })
	sort.SliceStable(novelty, func(i, j int) bool { return scores[novelty[i]].Novelty > scores[novelty[j]].Novelty })
	sort.SliceStable(domainDistance, func(i, j int) bool { return scores[domainDistance[i]].DomainDistance < scores[domainDistance[j]].DomainDistance })

	return types.SelectorRanking{
		Stability:      stability,
		Novelty:        novelty,
		DomainDistance: domainDistance,
		Scores:         scores,
	}
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
