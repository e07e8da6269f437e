// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package critic

import (
	"fmt"
	"strings"

	"github.com/pdiddy/idea2paper/pkg/types"
)

// CurrentRubricVersion is embedded in every critic prompt and pinned by the
// offline tau-calibration file. A tau file recording a different version is
// a fatal ConfigError before any LLM call is issued.
const CurrentRubricVersion = "rubric_v1"

var rubricText = map[types.Role]string{
	types.RoleMethodology: "Judge rigor and soundness of the method: does it follow logically from the stated problem, and is the experimental plan adequate to support the claims?",
	types.RoleNovelty:     "Judge originality: does the combination of problem framing and method differ meaningfully from standard approaches in this space?",
	types.RoleStoryteller: "Judge narrative clarity: does the abstract and problem framing build a compelling, well-motivated arc from gap to contribution?",
}

// BuildRolePrompt renders the blind pairwise judgment prompt for one role:
// the Story's card, every anchor card under its local alias, and the
// role-specific rubric with the pinned rubric_version.
func BuildRolePrompt(role types.Role, storyCard types.BlindCard, anchorCards map[types.LocalAlias]types.BlindCard, aliasOrder []types.LocalAlias) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rubric version: %s\n", CurrentRubricVersion)
	fmt.Fprintf(&b, "Role: %s\n%s\n\n", role, rubricText[role])
	fmt.Fprintf(&b, "Story card:\nproblem: %s\nmethod: %s\ncontrib: %s\n\n", storyCard.Problem, storyCard.Method, storyCard.Contrib)

	for _, alias := range aliasOrder {
		c := anchorCards[alias]
		fmt.Fprintf(&b, "Anchor %s:\nproblem: %s\nmethod: %s\ncontrib: %s\n\n", alias, c.Problem, c.Method, c.Contrib)
	}

	b.WriteString("For each anchor, judge whether the Story card is better, tie, or worse than that anchor, with a strength (weak/medium/strong) and a rationale of 25 words or fewer. ")
	b.WriteString("The rationale must never mention a numeric grade, a numeric comparison, or a publication decision.\n")
	b.WriteString(fmt.Sprintf("Respond as JSON: {\"rubric_version\":%q,\"comparisons\":[{\"anchor_id\":...,\"judgement\":...,\"strength\":...,\"rationale\":...}]}\n", CurrentRubricVersion))
	return b.String()
}
