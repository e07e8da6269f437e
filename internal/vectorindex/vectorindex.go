// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vectorindex implements the VectorIndex capability as a brute-force
// cosine-similarity scan over an in-memory corpus, optionally persisted to a
// BadgerDB instance keyed by a byte-prefixed scheme. ANN indexing is out of
// scope: recall and novelty corpora are assumed to fit comfortably in memory.
package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for the on-disk snapshot, mirroring a key-prefixed engine
// layout: one byte selects the record kind, the remainder is the item ID.
const (
	prefixVector = byte(0x01) // vector:itemID -> encoded []float64
)

// Result is one search hit.
type Result struct {
	ID    string
	Score float64
}

// Index is a brute-force cosine-similarity vector index over string-keyed
// items. Safe for concurrent reads; Build replaces the corpus wholesale.
type Index struct {
	ids     []string
	vectors [][]float64
	db      *badger.DB
}

// Open opens (creating if absent) a BadgerDB-backed Index at dir. Pass an
// empty dir to run purely in memory (used by tests and by corpora too small
// to warrant persistence).
func Open(dir string) (*Index, error) {
	idx := &Index{}
	if dir == "" {
		return idx, nil
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening vector index at %s: %w", dir, err)
	}
	idx.db = db
	if err := idx.loadFromDisk(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading vector index snapshot: %w", err)
	}
	return idx, nil
}

// Close releases the underlying BadgerDB handle, if any.
func (idx *Index) Close() error {
	if idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

// Build replaces the index's corpus with items and persists it if the index
// was opened against a directory.
func (idx *Index) Build(ctx context.Context, ids []string, vectors [][]float64) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("vectorindex: ids/vectors length mismatch (%d vs %d)", len(ids), len(vectors))
	}
	idx.ids = append([]string(nil), ids...)
	idx.vectors = append([][]float64(nil), vectors...)

	if idx.db == nil {
		return nil
	}
	return idx.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := []byte{prefixVector}
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for i, id := range idx.ids {
			encoded, err := json.Marshal(idx.vectors[i])
			if err != nil {
				return err
			}
			if err := txn.Set(vectorKey(id), encoded); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search returns the top-k items by cosine similarity to query, descending.
func (idx *Index) Search(_ context.Context, query []float64, k int) []Result {
	if len(query) == 0 || len(idx.ids) == 0 || k <= 0 {
		return nil
	}
	results := make([]Result, 0, len(idx.ids))
	for i, id := range idx.ids {
		results = append(results, Result{ID: id, Score: CosineSimilarity(query, idx.vectors[i])})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > len(results) {
		k = len(results)
	}
	return results[:k]
}

// CosineSimilarity returns the cosine similarity of two equal-length
// vectors, or 0 if either is zero-length or zero-magnitude.
func CosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if n > len(b) {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func vectorKey(id string) []byte {
	return append([]byte{prefixVector}, []byte(id)...)
}

func (idx *Index) loadFromDisk() error {
	return idx.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte{prefixVector}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			id := string(key[1:])
			var vec []float64
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &vec)
			}); err != nil {
				return err
			}
			idx.ids = append(idx.ids, id)
			idx.vectors = append(idx.vectors, vec)
		}
		return nil
	})
}
