// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package kgstore provides read-only access to the knowledge graph: Idea,
// Pattern, Domain, and Paper entities loaded once at process start into
// interned-ID slices plus adjacency maps. No entity holds a pointer to
// another; every cross-reference resolves through the accessors below. The
// store never mutates its graph after Load (process-scoped load-once
// invariant).
package kgstore

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/pdiddy/idea2paper/pkg/types"
)

const snapshotFile = "knowledge_graph_v2.binary"

// Relation names a typed edge kind.
type Relation string

const (
	RelationUsesPattern Relation = "uses_pattern"
	RelationWorksWellIn Relation = "works_well_in"
	RelationBelongsTo   Relation = "belongs_to"
)

// Store is the read-only, process-scoped KG snapshot.
type Store struct {
	ideas    []types.Idea
	patterns []types.Pattern
	domains  []types.Domain
	papers   []types.Paper

	usesPattern []types.EdgeUsesPattern
	worksWellIn []types.EdgeWorksWellIn
	belongsTo   []types.EdgeBelongsTo

	ideaByID    map[types.IdeaID]int
	patternByID map[types.PatternID]int
	domainByID  map[types.DomainID]int
	paperByID   map[types.PaperID]int

	// papersByPattern / patternsByDomain / ideasByDomain index the edge sets
	// for the per-node edge accessors and the per-cluster anchor lookups.
	papersByPattern  map[types.PatternID][]types.EdgeUsesPattern
	patternsByDomain map[types.DomainID][]types.EdgeWorksWellIn
	ideasByDomain    map[types.DomainID][]types.EdgeBelongsTo
}

// Load reads output/nodes_{idea,pattern,domain,paper}.json from outputDir,
// builds the interned-ID index, and returns the immutable Store. If a
// Badger-backed gob snapshot already exists, the JSON parse is skipped
// entirely; the snapshot is not compared against the JSON files.
func Load(outputDir string, badgerDir string) (*Store, error) {
	if badgerDir != "" {
		if g, ok, err := loadSnapshot(badgerDir); err != nil {
			return nil, fmt.Errorf("loading kg snapshot: %w", err)
		} else if ok {
			return build(g), nil
		}
	}

	g, err := readJSON(outputDir)
	if err != nil {
		return nil, err
	}

	if badgerDir != "" {
		if err := writeSnapshot(badgerDir, g); err != nil {
			return nil, fmt.Errorf("writing kg snapshot: %w", err)
		}
	}

	return build(g), nil
}

// FromGraph builds a Store directly from an in-memory Graph, bypassing
// disk entirely. Used by tests and by callers that already hold a parsed
// graph.
func FromGraph(g types.Graph) *Store {
	return build(g)
}

func readJSON(outputDir string) (types.Graph, error) {
	var g types.Graph
	readers := []struct {
		file string
		dst  interface{}
	}{
		{"nodes_idea.json", &g.Ideas},
		{"nodes_pattern.json", &g.Patterns},
		{"nodes_domain.json", &g.Domains},
		{"nodes_paper.json", &g.Papers},
		{"edges_uses_pattern.json", &g.UsesPattern},
		{"edges_works_well_in.json", &g.WorksWellIn},
		{"edges_belongs_to.json", &g.BelongsTo},
	}
	for _, r := range readers {
		path := filepath.Join(outputDir, r.file)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return types.Graph{}, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := json.Unmarshal(data, r.dst); err != nil {
			return types.Graph{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return g, nil
}

func build(g types.Graph) *Store {
	s := &Store{
		ideas:       g.Ideas,
		patterns:    g.Patterns,
		domains:     g.Domains,
		papers:      g.Papers,
		usesPattern: g.UsesPattern,
		worksWellIn: g.WorksWellIn,
		belongsTo:   g.BelongsTo,

		ideaByID:    make(map[types.IdeaID]int, len(g.Ideas)),
		patternByID: make(map[types.PatternID]int, len(g.Patterns)),
		domainByID:  make(map[types.DomainID]int, len(g.Domains)),
		paperByID:   make(map[types.PaperID]int, len(g.Papers)),

		papersByPattern:  make(map[types.PatternID][]types.EdgeUsesPattern),
		patternsByDomain: make(map[types.DomainID][]types.EdgeWorksWellIn),
		ideasByDomain:    make(map[types.DomainID][]types.EdgeBelongsTo),
	}
	for i, idea := range g.Ideas {
		s.ideaByID[idea.IdeaID] = i
	}
	for i, p := range g.Patterns {
		s.patternByID[p.PatternID] = i
	}
	for i, d := range g.Domains {
		s.domainByID[d.DomainID] = i
	}
	for i, p := range g.Papers {
		s.paperByID[p.PaperID] = i
	}
	for _, e := range g.UsesPattern {
		s.papersByPattern[e.PatternID] = append(s.papersByPattern[e.PatternID], e)
	}
	for _, e := range g.WorksWellIn {
		s.patternsByDomain[e.DomainID] = append(s.patternsByDomain[e.DomainID], e)
	}
	for _, e := range g.BelongsTo {
		s.ideasByDomain[e.DomainID] = append(s.ideasByDomain[e.DomainID], e)
	}
	return s
}

// Ideas returns every Idea node, in load order.
func (s *Store) Ideas() []types.Idea { return s.ideas }

// Patterns returns every Pattern node, in load order.
func (s *Store) Patterns() []types.Pattern { return s.patterns }

// Domains returns every Domain node, in load order.
func (s *Store) Domains() []types.Domain { return s.domains }

// Papers returns every Paper node, in load order.
func (s *Store) Papers() []types.Paper { return s.papers }

// PatternByID resolves a PatternID to its Pattern, or false if absent.
func (s *Store) PatternByID(id types.PatternID) (types.Pattern, bool) {
	i, ok := s.patternByID[id]
	if !ok {
		return types.Pattern{}, false
	}
	return s.patterns[i], true
}

// PaperByID resolves a PaperID to its Paper, or false if absent.
func (s *Store) PaperByID(id types.PaperID) (types.Paper, bool) {
	i, ok := s.paperByID[id]
	if !ok {
		return types.Paper{}, false
	}
	return s.papers[i], true
}

// DomainByID resolves a DomainID to its Domain, or false if absent.
func (s *Store) DomainByID(id types.DomainID) (types.Domain, bool) {
	i, ok := s.domainByID[id]
	if !ok {
		return types.Domain{}, false
	}
	return s.domains[i], true
}

// PapersForPattern returns the uses_pattern edges into pattern id, i.e. the
// Papers assigned to that Pattern's cluster.
func (s *Store) PapersForPattern(id types.PatternID) []types.EdgeUsesPattern {
	return s.papersByPattern[id]
}

// PatternsForDomain returns the works_well_in edges into domain id.
func (s *Store) PatternsForDomain(id types.DomainID) []types.EdgeWorksWellIn {
	return s.patternsByDomain[id]
}

// IdeasForDomain returns the belongs_to edges into domain id.
func (s *Store) IdeasForDomain(id types.DomainID) []types.EdgeBelongsTo {
	return s.ideasByDomain[id]
}

// AnchorPapersForPattern returns Papers assigned to pattern's cluster that
// carry usable review_stats, widening to the Pattern's Domain if fewer than
// minUsable are found (spec anchor-selection widen rule).
func (s *Store) AnchorPapersForPattern(id types.PatternID, minUsable int) []types.Paper {
	usable := s.usablePapers(s.papersInPattern(id))
	if len(usable) >= minUsable {
		return usable
	}
	pat, ok := s.PatternByID(id)
	if !ok {
		return usable
	}
	return s.usablePapers(s.papersInDomain(pat.Domain))
}

func (s *Store) papersInPattern(id types.PatternID) []types.Paper {
	var out []types.Paper
	for _, e := range s.papersByPattern[id] {
		if p, ok := s.PaperByID(e.PaperID); ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) papersInDomain(id types.DomainID) []types.Paper {
	var out []types.Paper
	for _, p := range s.papers {
		if p.DomainID == id {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) usablePapers(papers []types.Paper) []types.Paper {
	var out []types.Paper
	for _, p := range papers {
		if p.ReviewStats != nil {
			out = append(out, p)
		}
	}
	return out
}

func loadSnapshot(dir string) (types.Graph, bool, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return types.Graph{}, false, err
	}
	defer db.Close()

	var g types.Graph
	found := false
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotFile))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			dec := gob.NewDecoder(bytes.NewReader(val))
			return dec.Decode(&g)
		})
	})
	return g, found, err
}

func writeSnapshot(dir string, g types.Graph) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	buf := &bytes.Buffer{}
	enc := gob.NewEncoder(buf)
	if err := enc.Encode(g); err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotFile), buf.Bytes())
	})
}
