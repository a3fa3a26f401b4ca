package model

// Payload is the single payload schema shared by every vector store
// backend. Concepts is an optional extension; everything else is required.
// Store adapters drop records that do not conform instead of guessing.
type Payload struct {
	Content   string   `json:"content"`
	Title     string   `json:"title"`
	CreatedAt int64    `json:"created_at"`
	Concepts  []string `json:"concepts,omitempty"`
}

// IndexRecord is what the indexer hands to the vector store. Written once,
// never mutated in place; logical updates are new records.
type IndexRecord struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}
