package errors

import "errors"

// Sentinel errors shared across the retrieval pipeline. Wrap with
// fmt.Errorf("...: %w", Err...) so callers can classify with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrTooMany           = errors.New("too many requests")
	ErrEmbeddingProvider = errors.New("embedding provider failure")
	ErrRetrieval         = errors.New("retrieval failure")
	ErrVectorStore       = errors.New("vector store failure")
	ErrAIUnavailable     = errors.New("ai provider unavailable")
	ErrInternal          = errors.New("internal")
)

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsRetrieval(err error) bool {
	return errors.Is(err, ErrRetrieval) || errors.Is(err, ErrVectorStore)
}
