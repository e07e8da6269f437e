// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package story

import "fmt"

// WritingFramework is a lightweight narrative scaffold attached to the
// generation prompt: a sequence of beats the Story's prose should hit, kept
// separate from the schema itself so Refinement mode can restate it without
// re-deriving it from the Pattern each round.
type WritingFramework struct {
	Beats []string
}

// Planner derives a WritingFramework from a Pattern's summary. It never
// calls an LLM; it is a pure, deterministic scaffold generator, grounded on
// the fixed five-beat framework the original pipeline's planner encoded.
type Planner struct{}

// Plan returns the standard five-beat research-story framework, seeded with
// the Pattern's compressed problem/solution language so the beats read as
// specific to this Pattern rather than generic.
func (Planner) Plan(problem, solution string) WritingFramework {
	return WritingFramework{Beats: []string{
		fmt.Sprintf("Open on the unresolved tension: %s", problem),
		"State the gap in prior approaches plainly, without hedging.",
		fmt.Sprintf("Introduce the method as the natural resolution: %s", solution),
		"Preview the strongest experimental claim before the reader expects it.",
		"Close by naming what changes for practitioners if the claim holds.",
	}}
}

// Render renders the framework as prompt-ready guidance text.
func (f WritingFramework) Render() string {
	out := "Narrative framework (do not restate verbatim, use as structure):\n"
	for i, beat := range f.Beats {
		out += fmt.Sprintf("%d. %s\n", i+1, beat)
	}
	return out
}
