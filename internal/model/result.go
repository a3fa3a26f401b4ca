package model

// SearchResult is one scored candidate from a vector store search.
// Score is cosine similarity in [0,1]. Ephemeral, rebuilt per query.
type SearchResult struct {
	ID      string    `json:"id"`
	Score   float32   `json:"score"`
	Payload Payload   `json:"payload"`
	Vector  []float32 `json:"vector,omitempty"`
}

// RetrievalContext splits ranked results into one primary source and at
// most two supporting sources for prompt assembly.
type RetrievalContext struct {
	Primary    *SearchResult
	Supporting []SearchResult
}
