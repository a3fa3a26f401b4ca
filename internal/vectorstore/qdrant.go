package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/shelfchat/shelfchat/internal/model"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
)

type qdrantConfig struct {
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	Collection     string `json:"collection"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// qdrantStore is a minimal REST client to Qdrant. It assumes cosine
// distance and creates the collection if missing.
type qdrantStore struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

func init() {
	Register("qdrant", createQdrantStore)
}

func createQdrantStore(args interface{}) (Store, error) {
	cfg := &qdrantConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant url and collection are required")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &qdrantStore{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (s *qdrantStore) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid vector dimension %d", appErr.ErrVectorStore, dimension)
	}
	s.dimension = dimension
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant answers 200 when the collection already exists with the same
	// schema; a schema conflict propagates as an error.
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil); err != nil {
		return fmt.Errorf("%w: ensure collection: %v", appErr.ErrVectorStore, err)
	}
	return nil
}

func (s *qdrantStore) Upsert(ctx context.Context, records []model.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		points = append(points, map[string]interface{}{
			"id":      rec.ID,
			"vector":  rec.Vector,
			"payload": rec.Payload,
		})
	}
	body := map[string]interface{}{"points": points}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection)
	if err := s.putJSON(ctx, url, body, nil); err != nil {
		return fmt.Errorf("%w: upsert %d points: %v", appErr.ErrVectorStore, len(points), err)
	}
	return nil
}

type qdrantSearchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	WithVector  bool          `json:"with_vector"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
}

type qdrantFilter struct {
	Should []qdrantCondition `json:"should"`
}

type qdrantCondition struct {
	Key   string      `json:"key"`
	Match qdrantMatch `json:"match"`
}

type qdrantMatch struct {
	Value string `json:"value"`
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      json.RawMessage `json:"id"`
		Score   float32         `json:"score"`
		Payload model.Payload   `json:"payload"`
		Vector  []float32       `json:"vector"`
	} `json:"result"`
}

func (s *qdrantStore) Search(ctx context.Context, params SearchParams) ([]model.SearchResult, error) {
	req := qdrantSearchRequest{
		Vector:      params.Vector,
		Limit:       params.Limit,
		WithPayload: true,
		WithVector:  params.WithVectors,
	}
	if len(params.Concepts) > 0 {
		filter := &qdrantFilter{}
		for _, concept := range params.Concepts {
			filter.Should = append(filter.Should, qdrantCondition{
				Key:   "concepts",
				Match: qdrantMatch{Value: concept},
			})
		}
		req.Filter = filter
	}

	var resp qdrantSearchResponse
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if err := s.postJSON(ctx, url, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: search: %v", appErr.ErrVectorStore, err)
	}

	results := make([]model.SearchResult, 0, len(resp.Result))
	for _, item := range resp.Result {
		if item.Payload.Content == "" {
			// Record written outside the indexer contract; drop it here
			// rather than hand a hollow candidate to the retriever.
			logutil.GetLogger(ctx).Warn("dropping search result with empty payload", zap.String("id", rawIDToString(item.ID)))
			continue
		}
		results = append(results, model.SearchResult{
			ID:      rawIDToString(item.ID),
			Score:   item.Score,
			Payload: item.Payload,
			Vector:  item.Vector,
		})
	}
	return results, nil
}

// rawIDToString accepts both string and integer point ids.
func rawIDToString(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return fmt.Sprintf("%d", asNumber)
	}
	return string(raw)
}

func (s *qdrantStore) putJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	return s.doJSON(ctx, http.MethodPut, url, body, out)
}

func (s *qdrantStore) postJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	return s.doJSON(ctx, http.MethodPost, url, body, out)
}

func (s *qdrantStore) doJSON(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
