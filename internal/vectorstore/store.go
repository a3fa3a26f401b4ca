package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shelfchat/shelfchat/internal/model"
)

// SearchParams describes one nearest-neighbor query. Concepts is a soft
// filter: backends may use it to widen recall toward tagged records but
// must never exclude candidates that do not match.
type SearchParams struct {
	Vector      []float32
	Limit       int
	Concepts    []string
	WithVectors bool
}

// Store is the vector database boundary. Implementations wrap failures in
// errors.ErrVectorStore. Search result ordering is the backend's own
// contract; the retriever re-sorts and never relies on it.
type Store interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, records []model.IndexRecord) error
	Search(ctx context.Context, params SearchParams) ([]model.SearchResult, error)
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(storeType string, args interface{}) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(storeType))
	if key == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store type: %s", storeType)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("vector store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector store config: %w", err)
	}
	return nil
}
