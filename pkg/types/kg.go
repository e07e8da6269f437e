// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model for the idea2paper generation
// engine: the knowledge-graph entities read by the KG store, the Story
// produced by the pipeline, and the immutable engine configuration.
//
// See SPEC_FULL.md §3 (Data Model).
package types

// PatternID identifies a Pattern node in the knowledge graph.
type PatternID string

// DomainID identifies a Domain node in the knowledge graph.
type DomainID string

// PaperID identifies a Paper node in the knowledge graph.
type PaperID string

// IdeaID identifies an Idea node in the knowledge graph.
type IdeaID string

// Idea is a prior research idea recorded in the knowledge graph. Idea nodes
// are immutable once the graph is loaded; PatternIDs lists zero or more
// Patterns directly on the node and is not derived from the uses_pattern
// edges.
type Idea struct {
	IdeaID      IdeaID      `json:"idea_id"`
	Description string      `json:"description"`
	PatternIDs  []PatternID `json:"pattern_ids"`
}

// PatternSummary holds the narrative fields an LLM-enhanced KG build attaches
// to a Pattern cluster.
type PatternSummary struct {
	RepresentativeIdeas []string `json:"representative_ideas"`
	CommonProblems      []string `json:"common_problems"`
	SolutionApproaches  []string `json:"solution_approaches"`
	Story               []string `json:"story"`
}

// PatternInfoSource records where enrichment fields on a PatternInfo came
// from, per SPEC_FULL.md §3: fixed-shape records with a merge tag instead of
// presence/absence sentinels.
type PatternInfoSource string

const (
	// SourceGraph means the field came directly off the loaded KG node.
	SourceGraph PatternInfoSource = "graph"
	// SourceStructured means the field was attached by a post-load
	// enrichment merge (e.g. skeleton examples read from a side file).
	SourceStructured PatternInfoSource = "structured"
)

// Pattern is a cluster-level summary of prior papers representing a
// research-trope template. Immutable at run time; recall returns references
// by PatternID plus a denormalized PatternInfo snapshot.
type Pattern struct {
	PatternID   PatternID      `json:"pattern_id"`
	Name        string         `json:"name"`
	ClusterSize int            `json:"cluster_size"`
	Domain      DomainID       `json:"domain"`
	SubDomains  []string       `json:"sub_domains"`
	Summary     PatternSummary `json:"summary"`

	// SkeletonExamples and CommonTricks are optional enrichment fields.
	// They are nil when the KG node omits them; Source is whatever the node
	// carries, since the store performs no enrichment merge.
	SkeletonExamples []string          `json:"skeleton_examples"`
	CommonTricks     []string          `json:"common_tricks"`
	Source           PatternInfoSource `json:"source"`
}

// Domain groups Patterns and Papers by research area.
type Domain struct {
	DomainID   DomainID `json:"domain_id"`
	Name       string   `json:"name"`
	SubDomains []string `json:"sub_domains"`
	PaperCount int      `json:"paper_count"`
}

// ReviewStats is the sole ground-truth signal for anchor scoring (§4.4).
type ReviewStats struct {
	AvgScore10    float64 `json:"avg_score10"`
	ReviewCount   int     `json:"review_count"`
	Dispersion10  float64 `json:"dispersion10"`
}

// HasStats reports whether review statistics are present for this paper.
// The zero value of ReviewStats is indistinguishable from "no reviews yet"
// only through this accessor, so Paper carries it as a pointer.
func (r *ReviewStats) HasStats() bool { return r != nil }

// Paper is a real, previously-published paper used as ground truth for
// anchored scoring and as a Path-3 recall candidate.
type Paper struct {
	PaperID     PaperID      `json:"paper_id"`
	Title       string       `json:"title"`
	PatternID   PatternID    `json:"pattern_id,omitempty"`
	DomainID    DomainID     `json:"domain_id"`
	ReviewStats *ReviewStats `json:"review_stats,omitempty"`
}

// EdgeUsesPattern is a Paper --uses_pattern--> Pattern edge.
type EdgeUsesPattern struct {
	PaperID   PaperID   `json:"paper_id"`
	PatternID PatternID `json:"pattern_id"`
	Quality   float64   `json:"quality"`
}

// EdgeWorksWellIn is a Pattern --works_well_in--> Domain edge.
type EdgeWorksWellIn struct {
	PatternID     PatternID `json:"pattern_id"`
	DomainID      DomainID  `json:"domain_id"`
	Effectiveness float64   `json:"effectiveness"`
	Confidence    float64   `json:"confidence"`
}

// EdgeBelongsTo is an Idea --belongs_to--> Domain edge.
type EdgeBelongsTo struct {
	IdeaID   IdeaID   `json:"idea_id"`
	DomainID DomainID `json:"domain_id"`
	Weight   float64  `json:"weight"`
}

// Graph is the read-only, process-scoped knowledge graph snapshot: four
// entity slices plus three edge slices, all keyed by interned string ID.
// Per SPEC_FULL.md §3, no entity carries a pointer to another; every
// cross-reference is resolved through KGStore's index maps.
type Graph struct {
	Ideas    []Idea
	Patterns []Pattern
	Domains  []Domain
	Papers   []Paper

	UsesPattern  []EdgeUsesPattern
	WorksWellIn  []EdgeWorksWellIn
	BelongsTo    []EdgeBelongsTo
}
