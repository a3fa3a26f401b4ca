package model

// Chunk is a token-bounded slice of a document with enough surrounding
// narrative metadata to embed it out of context. Consecutive chunks share a
// fixed token overlap at the window level; after paragraph trimming the
// overlap is not guaranteed to be a literal substring of both chunks.
type Chunk struct {
	Content       string `json:"content"`
	Index         int    `json:"index"`
	TotalCount    int    `json:"total_count"`
	StartBoundary string `json:"start_boundary"`
	EndBoundary   string `json:"end_boundary"`
	// PrevPreview/NextPreview are empty for the first/last chunk.
	PrevPreview string `json:"prev_preview,omitempty"`
	NextPreview string `json:"next_preview,omitempty"`
	SourceTitle string `json:"source_title"`
}
