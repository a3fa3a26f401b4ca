package retriever

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shelfchat/shelfchat/internal/model"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
	"github.com/shelfchat/shelfchat/internal/vectorstore"
)

func resultsWithScores(scores ...float32) []model.SearchResult {
	out := make([]model.SearchResult, len(scores))
	for i, s := range scores {
		out[i] = model.SearchResult{
			ID:      fmt.Sprintf("id-%02d", i),
			Score:   s,
			Payload: model.Payload{Content: fmt.Sprintf("content %d", i), Title: "book"},
		}
	}
	return out
}

func scoresOf(results []model.SearchResult) []float32 {
	out := make([]float32, len(results))
	for i, r := range results {
		out[i] = r.Score
	}
	return out
}

func TestRankEnoughHighRelevance(t *testing.T) {
	candidates := resultsWithScores(0.60, 0.55, 0.52, 0.50, 0.48, 0.47, 0.40, 0.38, 0.20, 0.10)

	got := rank(candidates, nil, 5, DefaultHighThreshold, DefaultLowThreshold)
	require.Equal(t, []float32{0.60, 0.55, 0.52, 0.50, 0.48}, scoresOf(got))
	for _, r := range got {
		require.GreaterOrEqual(t, r.Score, float32(DefaultHighThreshold))
	}
}

func TestRankBlendsLowTier(t *testing.T) {
	// The worked example: high = 3 results, low fills up to the limit.
	candidates := resultsWithScores(0.52, 0.50, 0.48, 0.40, 0.38, 0.36, 0.30, 0.20, 0.10, 0.05)

	got := rank(candidates, nil, 5, DefaultHighThreshold, DefaultLowThreshold)
	require.Equal(t, []float32{0.52, 0.50, 0.48, 0.40, 0.38}, scoresOf(got))
}

func TestRankFallsBackToFullCandidateSet(t *testing.T) {
	candidates := resultsWithScores(0.30, 0.25, 0.20, 0.15, 0.10, 0.05)

	got := rank(candidates, nil, 5, DefaultHighThreshold, DefaultLowThreshold)
	require.Equal(t, []float32{0.30, 0.25, 0.20, 0.15, 0.10}, scoresOf(got))
}

func TestRankShortBlendFillsFromRest(t *testing.T) {
	// high+low smaller than limit: the full candidate set fills the gap.
	candidates := resultsWithScores(0.50, 0.40, 0.30, 0.20, 0.10)

	got := rank(candidates, nil, 5, DefaultHighThreshold, DefaultLowThreshold)
	require.Equal(t, []float32{0.50, 0.40, 0.30, 0.20, 0.10}, scoresOf(got))
}

func TestRankIgnoresStoreOrder(t *testing.T) {
	candidates := resultsWithScores(0.10, 0.55, 0.48, 0.60, 0.20)

	got := rank(candidates, nil, 3, DefaultHighThreshold, DefaultLowThreshold)
	require.Equal(t, []float32{0.60, 0.55, 0.48}, scoresOf(got))
}

func TestRankDeduplicatesByID(t *testing.T) {
	candidates := resultsWithScores(0.60, 0.55, 0.50)
	dup := candidates[0]
	dup.Score = 0.58
	candidates = append(candidates, dup)

	got := rank(candidates, nil, 5, DefaultHighThreshold, DefaultLowThreshold)
	require.Len(t, got, 3)
	require.Equal(t, float32(0.60), got[0].Score)
}

func TestRankConceptOverlapBreaksTies(t *testing.T) {
	candidates := resultsWithScores(0.50, 0.50, 0.50)
	candidates[2].Payload.Concepts = []string{"stoicism", "virtue"}
	candidates[1].Payload.Concepts = []string{"stoicism"}

	got := rank(candidates, []string{"Stoicism", "virtue"}, 3, DefaultHighThreshold, DefaultLowThreshold)
	require.Equal(t, "id-02", got[0].ID)
	require.Equal(t, "id-01", got[1].ID)
	require.Equal(t, "id-00", got[2].ID)
}

func TestRankDeterministicOrdering(t *testing.T) {
	candidates := resultsWithScores(0.50, 0.50, 0.50, 0.50)

	first := rank(append([]model.SearchResult(nil), candidates...), nil, 4, DefaultHighThreshold, DefaultLowThreshold)
	second := rank(append([]model.SearchResult(nil), candidates...), nil, 4, DefaultHighThreshold, DefaultLowThreshold)
	require.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		require.Less(t, first[i-1].ID, first[i].ID)
	}
}

type fakeQueryEmbedder struct {
	err error
}

func (f *fakeQueryEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeQueryEmbedder) ModelName() string {
	return "fake"
}

type fakeStore struct {
	results    []model.SearchResult
	err        error
	lastParams vectorstore.SearchParams
}

func (f *fakeStore) Init(ctx context.Context, dimension int) error {
	return nil
}

func (f *fakeStore) Upsert(ctx context.Context, records []model.IndexRecord) error {
	return nil
}

func (f *fakeStore) Search(ctx context.Context, params vectorstore.SearchParams) ([]model.SearchResult, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeConcepts struct {
	concepts []string
	err      error
	lastMax  int
}

func (f *fakeConcepts) ExtractConcepts(ctx context.Context, text string, max int) ([]string, error) {
	f.lastMax = max
	return f.concepts, f.err
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	r := New(&fakeQueryEmbedder{}, &fakeStore{}, nil, Config{})
	_, err := r.Search(context.Background(), "   ", 5)
	require.ErrorIs(t, err, appErr.ErrInvalidInput)
}

func TestSearchOverfetchesFromStore(t *testing.T) {
	store := &fakeStore{results: resultsWithScores(0.50, 0.40)}
	r := New(&fakeQueryEmbedder{}, store, nil, Config{})

	_, err := r.Search(context.Background(), "what is virtue", 5)
	require.NoError(t, err)
	require.Equal(t, 10, store.lastParams.Limit)
	require.True(t, store.lastParams.WithVectors)
}

func TestSearchWrapsEmbedFailure(t *testing.T) {
	r := New(&fakeQueryEmbedder{err: fmt.Errorf("boom")}, &fakeStore{}, nil, Config{})
	_, err := r.Search(context.Background(), "query", 5)
	require.ErrorIs(t, err, appErr.ErrRetrieval)
}

func TestSearchKeepsStoreErrorIdentity(t *testing.T) {
	storeErr := fmt.Errorf("%w: down", appErr.ErrVectorStore)
	r := New(&fakeQueryEmbedder{}, &fakeStore{err: storeErr}, nil, Config{})
	_, err := r.Search(context.Background(), "query", 5)
	require.ErrorIs(t, err, appErr.ErrVectorStore)
}

func TestSearchPassesConceptsAsSoftFilter(t *testing.T) {
	store := &fakeStore{results: resultsWithScores(0.50)}
	concepts := &fakeConcepts{concepts: []string{"stoicism"}}
	r := New(&fakeQueryEmbedder{}, store, concepts, Config{ConceptBoost: true})

	_, err := r.Search(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"stoicism"}, store.lastParams.Concepts)
}

func TestSearchHonorsConfiguredMaxConcepts(t *testing.T) {
	store := &fakeStore{results: resultsWithScores(0.50)}
	concepts := &fakeConcepts{concepts: []string{"stoicism"}}
	r := New(&fakeQueryEmbedder{}, store, concepts, Config{ConceptBoost: true, MaxConcepts: 3})

	_, err := r.Search(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Equal(t, 3, concepts.lastMax)

	rDefault := New(&fakeQueryEmbedder{}, store, concepts, Config{ConceptBoost: true})
	_, err = rDefault.Search(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Equal(t, DefaultMaxConcepts, concepts.lastMax)
}

func TestSearchSurvivesConceptExtractionFailure(t *testing.T) {
	store := &fakeStore{results: resultsWithScores(0.50)}
	concepts := &fakeConcepts{err: fmt.Errorf("llm unavailable")}
	r := New(&fakeQueryEmbedder{}, store, concepts, Config{ConceptBoost: true})

	got, err := r.Search(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Nil(t, store.lastParams.Concepts)
}

func TestSearchBoundsResultCount(t *testing.T) {
	store := &fakeStore{results: resultsWithScores(0.60, 0.59, 0.58, 0.57, 0.56, 0.55, 0.54)}
	r := New(&fakeQueryEmbedder{}, store, nil, Config{})

	got, err := r.Search(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
}
