// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package recall implements the three-path fused retrieval engine:
// similar-idea, domain, and similar-paper paths, each a pure function over
// the KG snapshot, fused by fixed weights into a ranked Pattern list. It
// never mutates the KG and issues embedding calls only through the
// gateway.EmbeddingGateway contract.
package recall

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/idea2paper/internal/gateway"
	"github.com/pdiddy/idea2paper/internal/kgstore"
	"github.com/pdiddy/idea2paper/pkg/types"
)

// Engine runs the fused three-path recall over a KGStore.
type Engine struct {
	Store  *kgstore.Store
	Embed  gateway.EmbeddingGateway
	Config types.RecallConfig
	Model  string

	// EmbedBatchSize and EmbedSleepSeconds mirror the gateway.embed_batch_size
	// and gateway.embed_sleep_sec configuration keys: candidate texts are
	// embedded in chunks of at most EmbedBatchSize, sleeping EmbedSleepSeconds
	// between chunks (or the provider's requested Retry-After on a
	// types.RateLimited response) before continuing.
	EmbedBatchSize    int
	EmbedSleepSeconds float64
}

// Recall runs all three paths and returns the fused top-K Patterns plus the
// intermediate signals each path produced. On an empty result the audit's
// EmptyReason is populated.
func (e *Engine) Recall(ctx context.Context, userIdea string) ([]types.PatternScore, types.RecallAudit, error) {
	path1, aud1, err := e.path1SimilarIdea(ctx, userIdea)
	if err != nil {
		return nil, types.RecallAudit{}, fmt.Errorf("recall path1: %w", err)
	}
	path2, aud2 := e.path2Domain(ctx, userIdea)
	path3, aud3, err := e.path3SimilarPaper(ctx, userIdea)
	if err != nil {
		return nil, types.RecallAudit{}, fmt.Errorf("recall path3: %w", err)
	}

	w1, w2, w3 := e.weights()
	norm := e.Config.NormalizePaths

	patternIDs := unionKeys(path1, path2, path3)
	scored := make([]types.PatternScore, 0, len(patternIDs))
	entries := make([]types.RecallTopKEntry, 0, len(patternIDs))

	n1, n2, n3 := path1, path2, path3
	if norm {
		n1 = normalize(path1)
		n2 = normalize(path2)
		n3 = normalize(path3)
	}

	for _, pid := range patternIDs {
		final := w1*n1[pid] + w2*n2[pid] + w3*n3[pid]
		info, ok := e.Store.PatternByID(pid)
		if !ok {
			continue
		}
		scored = append(scored, types.PatternScore{PatternID: pid, Info: info, Score: final})
		entries = append(entries, types.RecallTopKEntry{
			PatternID: pid, Final: final, Path1: path1[pid], Path2: path2[pid], Path3: path3[pid],
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	sort.Slice(entries, func(i, j int) bool { return entries[i].Final > entries[j].Final })

	topK := e.Config.FinalTopK
	if topK <= 0 {
		topK = 10
	}
	if len(scored) > topK {
		scored = scored[:topK]
	}
	if len(entries) > topK {
		entries = entries[:topK]
	}

	audit := types.RecallAudit{Path1: aud1, Path2: aud2, Path3: aud3, FinalTopK: entries}
	if len(scored) == 0 {
		audit.EmptyReason = "no_candidate_patterns"
	}
	return scored, audit, nil
}

func (e *Engine) weights() (float64, float64, float64) {
	w1, w2, w3 := e.Config.Path1Weight, e.Config.Path2Weight, e.Config.Path3Weight
	if w1 == 0 && w2 == 0 && w3 == 0 {
		return 0.4, 0.2, 0.4
	}
	return w1, w2, w3
}

// path1SimilarIdea ranks Ideas by similarity to userIdea: a coarse Jaccard
// filter narrows the candidate pool, then a fine cosine-similarity re-rank
// over embeddings picks the top matches, fanning contributions out to each
// surviving idea's patterns.
func (e *Engine) path1SimilarIdea(ctx context.Context, userIdea string) (map[types.PatternID]float64, types.RecallPath1Audit, error) {
	scores := map[types.PatternID]float64{}
	audit := types.RecallPath1Audit{Contributions: map[types.IdeaID]float64{}}

	ideas := e.Store.Ideas()
	if len(ideas) == 0 {
		return scores, audit, nil
	}

	coarseSize := e.Config.CoarseRecallSize
	if coarseSize <= 0 {
		coarseSize = 100
	}
	userTokens := tokenSet(userIdea)

	type jaccardHit struct {
		idea  types.Idea
		score float64
	}
	hits := make([]jaccardHit, 0, len(ideas))
	for _, idea := range ideas {
		j := jaccard(userTokens, tokenSet(idea.Description))
		hits = append(hits, jaccardHit{idea: idea, score: j})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > coarseSize {
		hits = hits[:coarseSize]
	}

	fineTopK := e.Config.FineTopK
	if fineTopK <= 0 {
		fineTopK = 10
	}

	if e.Embed == nil {
		// No embedding gateway configured: degrade silently to Jaccard-only.
		audit.Degraded = true
		if len(hits) > fineTopK {
			hits = hits[:fineTopK]
		}
		for _, h := range hits {
			applyIdeaScore(scores, h.idea, h.score)
			audit.TopIdeas = append(audit.TopIdeas, h.idea.IdeaID)
			audit.Contributions[h.idea.IdeaID] = h.score
		}
		return scores, audit, nil
	}

	texts := make([]string, 0, len(hits)+1)
	texts = append(texts, userIdea)
	for _, h := range hits {
		texts = append(texts, h.idea.Description)
	}
	vectors, err := e.batchEmbed(ctx, texts)
	if err != nil {
		audit.Degraded = true
		if len(hits) > fineTopK {
			hits = hits[:fineTopK]
		}
		for _, h := range hits {
			applyIdeaScore(scores, h.idea, h.score)
			audit.TopIdeas = append(audit.TopIdeas, h.idea.IdeaID)
			audit.Contributions[h.idea.IdeaID] = h.score
		}
		return scores, audit, nil
	}

	queryVec := vectors[0]
	type cosineHit struct {
		idea  types.Idea
		score float64
	}
	cosHits := make([]cosineHit, 0, len(hits))
	for i, h := range hits {
		cosHits = append(cosHits, cosineHit{idea: h.idea, score: cosine(queryVec, vectors[i+1])})
	}
	sort.Slice(cosHits, func(i, j int) bool { return cosHits[i].score > cosHits[j].score })
	if len(cosHits) > fineTopK {
		cosHits = cosHits[:fineTopK]
	}

	for _, h := range cosHits {
		applyIdeaScore(scores, h.idea, h.score)
		audit.TopIdeas = append(audit.TopIdeas, h.idea.IdeaID)
		audit.Contributions[h.idea.IdeaID] = h.score
	}
	return scores, audit, nil
}

func applyIdeaScore(scores map[types.PatternID]float64, idea types.Idea, s float64) {
	for _, pid := range idea.PatternIDs {
		scores[pid] += s
	}
}

// path2Domain ranks Domains by cosine similarity of a compressed domain text
// against the query embedding,
// degrading to Jaccard token overlap when no embedder is configured or the
// call fails, then score Patterns connected to the top domains by
// works_well_in, boosted by cosine-primary sub-domain match strength.
func (e *Engine) path2Domain(ctx context.Context, userIdea string) (map[types.PatternID]float64, types.RecallPath2Audit) {
	scores := map[types.PatternID]float64{}
	audit := types.RecallPath2Audit{}

	domains := e.Store.Domains()
	if len(domains) == 0 {
		return scores, audit
	}

	m := e.Config.DomainTopM
	if m <= 0 {
		m = 5
	}
	boost := e.Config.DomainSubBoost
	if boost == 0 {
		boost = 1.0
	}

	userTokens := tokenSet(userIdea)
	domainTexts := make([]string, len(domains))
	for i, d := range domains {
		domainTexts[i] = d.Name + " | " + strings.Join(compress(d.SubDomains, 50), " | ")
	}

	type domainHit struct {
		domain types.Domain
		score  float64
	}
	hits := make([]domainHit, 0, len(domains))

	queryVec, domainVecs, embedded := e.embedTexts(ctx, userIdea, domainTexts)
	audit.Degraded = !embedded
	if embedded {
		for i, d := range domains {
			hits = append(hits, domainHit{domain: d, score: cosine(queryVec, domainVecs[i])})
		}
	} else {
		for i, d := range domains {
			hits = append(hits, domainHit{domain: d, score: jaccard(userTokens, tokenSet(domainTexts[i]))})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > m {
		hits = hits[:m]
	}

	for _, h := range hits {
		audit.TopDomains = append(audit.TopDomains, h.domain.DomainID)

		matchedSub, maxSubSim := e.bestSubDomain(ctx, userTokens, h.domain.SubDomains, queryVec, embedded)
		if matchedSub != "" {
			audit.TopSubDomains = append(audit.TopSubDomains, matchedSub)
		}

		for _, edge := range e.Store.PatternsForDomain(h.domain.DomainID) {
			pat, ok := e.Store.PatternByID(edge.PatternID)
			if !ok {
				continue
			}
			if matchedSub != "" && !contains(pat.SubDomains, matchedSub) {
				continue
			}
			eff := edge.Effectiveness
			if eff < 0.1 {
				eff = 0.1
			}
			scores[edge.PatternID] += h.score * eff * edge.Confidence * (1 + boost*maxSubSim)
		}
	}

	return scores, audit
}

// embedTexts embeds userIdea alongside texts in a single logical call,
// returning (queryVector, textVectors, true) on success, or (nil, nil,
// false) when no embedder is configured or the call fails — Path 2's
// cosine-primary/Jaccard-fallback seam. Path 1 and Path 3 call batchEmbed
// directly and apply the same fallback themselves.
func (e *Engine) embedTexts(ctx context.Context, query string, texts []string) ([]float64, [][]float64, bool) {
	if e.Embed == nil {
		return nil, nil, false
	}
	batch := make([]string, 0, len(texts)+1)
	batch = append(batch, query)
	batch = append(batch, texts...)
	vectors, err := e.batchEmbed(ctx, batch)
	if err != nil || len(vectors) != len(batch) {
		return nil, nil, false
	}
	return vectors[0], vectors[1:], true
}

// batchEmbed chunks texts into groups of at most EmbedBatchSize before
// calling the embedding gateway, sleeping EmbedSleepSeconds between chunks
// so a large candidate set doesn't burst the provider's rate limit. A
// types.RateLimited response is honored by sleeping its RetryAfterSeconds
// (falling back to EmbedSleepSeconds when the provider didn't specify one)
// and retrying that chunk exactly once before giving up.
func (e *Engine) batchEmbed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	batchSize := e.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		vectors, err := e.Embed.Embed(ctx, chunk, e.Model)
		var rateLimited *types.RateLimited
		if errors.As(err, &rateLimited) {
			wait := rateLimited.RetryAfterSeconds
			if wait <= 0 {
				wait = e.EmbedSleepSeconds
			}
			if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
			vectors, err = e.Embed.Embed(ctx, chunk, e.Model)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)

		if end < len(texts) && e.EmbedSleepSeconds > 0 {
			if sleepErr := sleepCtx(ctx, e.EmbedSleepSeconds); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	return out, nil
}

func sleepCtx(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// bestSubDomain finds the sub-domain most similar to the query: cosine over
// freshly embedded sub-domain text when the caller already has an embedded
// query vector, degrading to Jaccard token overlap otherwise.
func (e *Engine) bestSubDomain(ctx context.Context, userTokens map[string]struct{}, subDomains []string, queryVec []float64, embedded bool) (string, float64) {
	if len(subDomains) == 0 {
		return "", 0
	}
	if embedded {
		vectors, err := e.batchEmbed(ctx, subDomains)
		if err == nil && len(vectors) == len(subDomains) {
			best, bestSim := "", 0.0
			for i, sd := range subDomains {
				if sim := cosine(queryVec, vectors[i]); sim > bestSim {
					bestSim, best = sim, sd
				}
			}
			return best, bestSim
		}
	}
	best, bestSim := "", 0.0
	for _, sd := range subDomains {
		if sim := jaccard(userTokens, tokenSet(sd)); sim > bestSim {
			bestSim, best = sim, sd
		}
	}
	return best, bestSim
}

// path3SimilarPaper ranks Papers by title similarity, then propagates
// through each surviving paper's uses_pattern edge weighted by both paper
// quality and edge quality.
func (e *Engine) path3SimilarPaper(ctx context.Context, userIdea string) (map[types.PatternID]float64, types.RecallPath3Audit, error) {
	scores := map[types.PatternID]float64{}
	audit := types.RecallPath3Audit{}

	papers := e.Store.Papers()
	if len(papers) == 0 {
		return scores, audit, nil
	}

	fineTopK := e.Config.FineTopK
	if fineTopK <= 0 {
		fineTopK = 10
	}

	userTokens := tokenSet(userIdea)
	type paperHit struct {
		paper types.Paper
		score float64
	}
	hits := make([]paperHit, 0, len(papers))
	if e.Embed != nil {
		texts := make([]string, 0, len(papers)+1)
		texts = append(texts, userIdea)
		for _, p := range papers {
			texts = append(texts, p.Title)
		}
		vectors, err := e.batchEmbed(ctx, texts)
		if err == nil && len(vectors) == len(texts) {
			queryVec := vectors[0]
			for i, p := range papers {
				hits = append(hits, paperHit{paper: p, score: cosine(queryVec, vectors[i+1])})
			}
		}
	}
	if len(hits) == 0 {
		for _, p := range papers {
			hits = append(hits, paperHit{paper: p, score: jaccard(userTokens, tokenSet(p.Title))})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > fineTopK {
		hits = hits[:fineTopK]
	}

	for _, h := range hits {
		audit.TopPapers = append(audit.TopPapers, h.paper.PaperID)
		q := 0.5
		if h.paper.ReviewStats != nil {
			q = h.paper.ReviewStats.AvgScore10 / 10
		}
		for _, edge := range e.Store.PapersForPattern(h.paper.PatternID) {
			if edge.PaperID != h.paper.PaperID {
				continue
			}
			scores[edge.PatternID] += h.score * q * edge.Quality
		}
	}

	return scores, audit, nil
}

func tokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func cosine(a, b []float64) float64 {
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

func normalize(m map[types.PatternID]float64) map[types.PatternID]float64 {
	out := make(map[types.PatternID]float64, len(m))
	if len(m) == 0 {
		return out
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range m {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := max - min
	for k, v := range m {
		if span == 0 {
			out[k] = 0
			continue
		}
		out[k] = (v - min) / span
	}
	return out
}

func unionKeys(maps ...map[types.PatternID]float64) []types.PatternID {
	seen := map[types.PatternID]struct{}{}
	var out []types.PatternID
	for _, m := range maps {
		for k := range m {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out
}

func compress(items []string, cap int) []string {
	if len(items) > cap {
		return items[:cap]
	}
	return items
}

func contains(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}
