// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package critic

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pdiddy/idea2paper/pkg/types"
)

// TauTable is the offline-fit calibration file at output/judge_tau.json.
// It pins the exact (rubric_version, card_version, judge_model,
// nodes_paper_hash) tuple the per-role tau values were fit against; any
// mismatch refuses scoring outright rather than silently drifting.
type TauTable struct {
	TauMethodology float64 `json:"tau_methodology"`
	TauNovelty     float64 `json:"tau_novelty"`
	TauStoryteller float64 `json:"tau_storyteller"`
	RubricVersion  string  `json:"rubric_version"`
	CardVersion    string  `json:"card_version"`
	JudgeModel     string  `json:"judge_model"`
	NodesPaperHash string  `json:"nodes_paper_hash"`
}

// LoadTauTable reads and validates the tau file at path against the
// engine's current rubric/card versions, the configured judge model, and
// the expected corpus hash. A mismatch on any checked field is a fatal
// ConfigError. rubric_version and card_version are always checked; an empty
// judgeModel or nodesPaperHash argument skips that field's check.
func LoadTauTable(path, judgeModel, nodesPaperHash string) (TauTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TauTable{}, &types.ConfigError{Reason: fmt.Sprintf("reading tau file %s", path), Err: err}
	}

	var t TauTable
	if err := json.Unmarshal(data, &t); err != nil {
		return TauTable{}, &types.ConfigError{Reason: fmt.Sprintf("parsing tau file %s", path), Err: err}
	}

	if t.RubricVersion != CurrentRubricVersion {
		return TauTable{}, &types.ConfigError{Reason: fmt.Sprintf("tau file rubric_version %q does not match engine rubric_version %q", t.RubricVersion, CurrentRubricVersion)}
	}
	if t.CardVersion != string(CurrentCardVersion) {
		return TauTable{}, &types.ConfigError{Reason: fmt.Sprintf("tau file card_version %q does not match engine card_version %q", t.CardVersion, CurrentCardVersion)}
	}
	if judgeModel != "" && t.JudgeModel != judgeModel {
		return TauTable{}, &types.ConfigError{Reason: fmt.Sprintf("tau file judge_model %q does not match configured judge model %q", t.JudgeModel, judgeModel)}
	}
	if nodesPaperHash != "" && t.NodesPaperHash != nodesPaperHash {
		return TauTable{}, &types.ConfigError{Reason: "tau file nodes_paper_hash does not match current anchor corpus"}
	}

	return t, nil
}

// ForRole returns the tau value pinned for role.
func (t TauTable) ForRole(role types.Role) float64 {
	switch role {
	case types.RoleMethodology:
		return t.TauMethodology
	case types.RoleNovelty:
		return t.TauNovelty
	case types.RoleStoryteller:
		return t.TauStoryteller
	default:
		return 1.0
	}
}
