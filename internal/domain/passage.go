package domain

// Passage is one chunked unit of source text, stored alongside its
// originating file and position. Immutable once created during ingestion.
type Passage struct {
	Text     string `json:"text"`
	Source   string `json:"source"`
	Sequence int    `json:"sequence"`
}

// ScoredPassage pairs a passage with its inner-product similarity to a query.
// Vectors are unit-normalized, so the score equals cosine similarity.
type ScoredPassage struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}
