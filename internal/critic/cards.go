// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package critic

import (
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/idea2paper/pkg/types"
)

// CurrentCardVersion is embedded in every BlindCard and pinned by the
// offline tau-calibration file; a mismatch is a ConfigError, never silently
// tolerated.
const CurrentCardVersion types.CardVersion = "card_v1"

// forbiddenTerms may never appear in a rendered BlindCard or in critic
// rationale text: they would let the LLM infer it is looking at a
// score-bearing artifact.
var forbiddenTerms = []string{"score", "rating", "accept", "/10", "reject", "paper_id"}

// BuildStoryCard renders a Story into its anonymized BlindCard. Idempotent:
// calling it again on its own output is a no-op because the four
// whitelisted fields are already within their length caps.
func BuildStoryCard(s types.Story) types.BlindCard {
	return types.BlindCard{
		Problem:     truncate(s.ProblemFraming, types.MaxProblemChars),
		Method:      truncate(s.MethodSkeleton, types.MaxMethodChars),
		Contrib:     truncate(strings.Join(s.InnovationClaims, "; "), types.MaxContribChars),
		CardVersion: CurrentCardVersion,
	}
}

// BuildAnchorCard renders an anchor Paper into a BlindCard using only its
// Pattern-cluster narrative fields — never paper_id, title, URL, score, or
// pattern_id.
func BuildAnchorCard(problem, method, contrib string) types.BlindCard {
	return types.BlindCard{
		Problem:     truncate(problem, types.MaxProblemChars),
		Method:      truncate(method, types.MaxMethodChars),
		Contrib:     truncate(contrib, types.MaxContribChars),
		CardVersion: CurrentCardVersion,
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// ValidateBlindLeak scans rendered prompt text for any forbidden substring
// (a numeric score, rating, or identity leak) that must never reach the
// blind LLM judge.
func ValidateBlindLeak(text string) error {
	lower := strings.ToLower(text)
	for _, term := range forbiddenTerms {
		if strings.Contains(lower, term) {
			return &blindLeakError{term: term}
		}
	}
	return nil
}

type blindLeakError struct{ term string }

func (e *blindLeakError) Error() string {
	return "blind card leak: forbidden term " + e.term
}
