// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package novelty implements the Novelty Checker / Verifier: a similarity
// scan of a passing Story against a recent-conference corpus, with a
// configurable collision response (report_only, pivot, fail).
package novelty

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/idea2paper/internal/gateway"
	"github.com/pdiddy/idea2paper/internal/vectorindex"
	"github.com/pdiddy/idea2paper/pkg/types"
)

// CorpusEntry describes one item in the novelty index, so a collision can
// be resolved back to the techniques it should force the next attempt to
// avoid.
type CorpusEntry struct {
	PaperID    types.PaperID
	Techniques []string
}

// Verifier checks a passing Story for collision against the novelty corpus.
type Verifier struct {
	Index   *vectorindex.Index
	Embed   gateway.EmbeddingGateway
	Model   string
	Config  types.NoveltyConfig
	Corpus  map[string]CorpusEntry // keyed by vector index ID
}

// Outcome is the result of one Check call.
type Outcome struct {
	Collision bool
	MaxSim    float64
	MatchID   string
	Pivot     *types.PivotConstraint
}

// Check scans a passing Story against the novelty corpus. On no collision,
// or when the configured action is report_only, it always returns success
// without a pivot. On collision with action=pivot it returns a
// PivotConstraint; with action=fail it returns a CollisionDetected error.
func (v *Verifier) Check(ctx context.Context, s types.Story) (Outcome, error) {
	if !v.Config.Enable || v.Index == nil {
		return Outcome{}, nil
	}

	keywords := extractMethodKeywords(s.MethodSkeleton)
	query := strings.Join(keywords, " ") + " " + s.Title + " " + s.Abstract

	var queryVec []float64
	if v.Embed != nil {
		vectors, err := v.Embed.Embed(ctx, []string{query}, v.Model)
		if err != nil {
			return Outcome{}, fmt.Errorf("novelty embedding: %w", err)
		}
		if len(vectors) > 0 {
			queryVec = vectors[0]
		}
	}
	if queryVec == nil {
		return Outcome{}, nil
	}

	topK := v.Config.TopK
	if topK <= 0 {
		topK = 5
	}
	results := v.Index.Search(ctx, queryVec, topK)
	if len(results) == 0 {
		return Outcome{}, nil
	}

	top := results[0]
	threshold := v.Config.CollisionThreshold
	if threshold == 0 {
		threshold = 0.75
	}
	if top.Score <= threshold {
		return Outcome{MaxSim: top.Score}, nil
	}

	switch v.Config.Action {
	case types.NoveltyActionFail:
		entry := v.Corpus[top.ID]
		return Outcome{Collision: true, MaxSim: top.Score, MatchID: top.ID}, &types.CollisionDetected{
			PaperID: entry.PaperID, MaxSim: top.Score, Threshold: threshold,
		}
	case types.NoveltyActionPivot:
		entry := v.Corpus[top.ID]
		pivot := &types.PivotConstraint{
			ForbiddenTechniques: entry.Techniques,
			PivotDirection:      fmt.Sprintf("avoid the approach used in collision match %s; shift toward an adjacent method family", top.ID),
			DomainShift:         "",
		}
		return Outcome{Collision: true, MaxSim: top.Score, MatchID: top.ID, Pivot: pivot}, nil
	default: // report_only
		return Outcome{Collision: true, MaxSim: top.Score, MatchID: top.ID}, nil
	}
}

// extractMethodKeywords pulls a small set of content tokens out of the
// method skeleton text, dropping short stopword-like tokens.
func extractMethodKeywords(methodSkeleton string) []string {
	var keywords []string
	for _, tok := range strings.Fields(strings.ToLower(methodSkeleton)) {
		tok = strings.Trim(tok, ".,;:()")
		if len(tok) > 3 {
			keywords = append(keywords, tok)
		}
	}
	return keywords
}
