package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/shelfchat/shelfchat/internal/ai"
	"github.com/shelfchat/shelfchat/internal/model"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
	"github.com/shelfchat/shelfchat/internal/vectorstore"
)

// Relevance tiers. Raw top-K nearest-neighbor search returns
// semantically-unrelated filler whenever the collection is sparse for a
// topic; the thresholds bias toward precision first, recall second.
const (
	DefaultHighThreshold = 0.46
	DefaultLowThreshold  = 0.35
	DefaultLimit         = 5

	// Over-fetch factor: ask the store for more candidates than the caller
	// wants so the relevance filter has raw material to discard.
	DefaultOverfetch = 2

	DefaultMaxConcepts = 5
)

type Config struct {
	Limit         int
	HighThreshold float32
	LowThreshold  float32
	Overfetch     int
	ConceptBoost  bool
	// MaxConcepts caps how many tags are extracted from a query when
	// ConceptBoost is on.
	MaxConcepts int
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.HighThreshold == 0 {
		c.HighThreshold = DefaultHighThreshold
	}
	if c.LowThreshold == 0 {
		c.LowThreshold = DefaultLowThreshold
	}
	if c.Overfetch <= 0 {
		c.Overfetch = DefaultOverfetch
	}
	if c.MaxConcepts <= 0 {
		c.MaxConcepts = DefaultMaxConcepts
	}
	return c
}

// ConceptExtractor pulls short topical tags from a query. Optional; a nil
// extractor disables the concept soft filter and tie-break boost.
type ConceptExtractor interface {
	ExtractConcepts(ctx context.Context, text string, max int) ([]string, error)
}

// Retriever embeds a query, over-fetches nearest neighbors and blends them
// through the two relevance tiers into a ranked, size-bounded result set.
type Retriever struct {
	embedder ai.IEmbedder
	concepts ConceptExtractor
	store    vectorstore.Store
	cfg      Config
}

func New(embedder ai.IEmbedder, store vectorstore.Store, concepts ConceptExtractor, cfg Config) *Retriever {
	return &Retriever{
		embedder: embedder,
		concepts: concepts,
		store:    store,
		cfg:      cfg.withDefaults(),
	}
}

// Search returns at most limit results, deduplicated by id and sorted by
// descending score with a deterministic tie-break. limit <= 0 falls back
// to the configured default. Embedding failures wrap ErrRetrieval; store
// failures keep their ErrVectorStore identity. Either is fatal for the
// query turn unless the caller explicitly degrades to best-effort.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", appErr.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = r.cfg.Limit
	}
	logger := logutil.GetLogger(ctx).With(zap.String("query", query), zap.Int("limit", limit))

	vector, err := r.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", appErr.ErrRetrieval, err)
	}

	// Concept extraction is best-effort: a failed or empty extraction must
	// never block retrieval, it only widens recall when it works.
	var queryConcepts []string
	if r.concepts != nil && r.cfg.ConceptBoost {
		queryConcepts, err = r.concepts.ExtractConcepts(ctx, query, r.cfg.MaxConcepts)
		if err != nil {
			logger.Warn("concept extraction failed, continuing without", zap.Error(err))
			queryConcepts = nil
		}
	}

	candidates, err := r.store.Search(ctx, vectorstore.SearchParams{
		Vector:      vector,
		Limit:       limit * r.cfg.Overfetch,
		Concepts:    queryConcepts,
		WithVectors: true,
	})
	if err != nil {
		return nil, err
	}

	results := rank(candidates, queryConcepts, limit, r.cfg.HighThreshold, r.cfg.LowThreshold)
	logger.Debug("hybrid search done",
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Strings("concepts", queryConcepts),
	)
	return results, nil
}

// rank applies the two-tier relevance blending policy:
//
//	high = score >= highThreshold, low = [lowThreshold, highThreshold)
//
// Enough high candidates satisfy the limit on their own. Otherwise high and
// low blend together; if even that falls short the full candidate set fills
// the remainder. The store's own ordering is never trusted.
func rank(candidates []model.SearchResult, queryConcepts []string, limit int, high, low float32) []model.SearchResult {
	candidates = dedupeByID(candidates)

	var highTier, lowTier []model.SearchResult
	for _, c := range candidates {
		switch {
		case c.Score >= high:
			highTier = append(highTier, c)
		case c.Score >= low:
			lowTier = append(lowTier, c)
		}
	}

	var selected []model.SearchResult
	switch {
	case len(highTier) >= limit:
		selected = highTier
	case len(highTier)+len(lowTier) >= limit:
		selected = append(highTier, lowTier...)
	default:
		selected = candidates
	}

	sortResults(selected, queryConcepts)
	if len(selected) > limit {
		selected = selected[:limit]
	}
	return selected
}

// sortResults orders by score descending; equal scores break ties by
// concept-tag overlap with the query, then by id so repeated searches
// against an unchanged index return identical orderings.
func sortResults(results []model.SearchResult, queryConcepts []string) {
	overlap := make(map[string]int, len(results))
	if len(queryConcepts) > 0 {
		for _, res := range results {
			overlap[res.ID] = conceptOverlap(queryConcepts, res.Payload.Concepts)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if overlap[results[i].ID] != overlap[results[j].ID] {
			return overlap[results[i].ID] > overlap[results[j].ID]
		}
		return results[i].ID < results[j].ID
	})
}

func conceptOverlap(query, candidate []string) int {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	set := make(map[string]bool, len(query))
	for _, c := range query {
		set[strings.ToLower(strings.TrimSpace(c))] = true
	}
	count := 0
	for _, c := range candidate {
		if set[strings.ToLower(strings.TrimSpace(c))] {
			count++
		}
	}
	return count
}

// dedupeByID keeps the best-scoring occurrence of each id.
func dedupeByID(candidates []model.SearchResult) []model.SearchResult {
	best := make(map[string]int, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if idx, ok := best[c.ID]; ok {
			if c.Score > out[idx].Score {
				out[idx] = c
			}
			continue
		}
		best[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}
