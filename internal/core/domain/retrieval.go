package domain

// RetrievalSignal identifies which first-stage retriever produced a candidate.
type RetrievalSignal string

const (
	SignalSparse RetrievalSignal = "sparse"
	SignalDense  RetrievalSignal = "dense"
)

type SearchFilter struct {
	Category string
}

// ScoredCandidate is a passage plus the raw score of the retriever that found
// it. Sparse (BM25) and dense (cosine) scores are not comparable across
// signals; fusion works on rank only.
type ScoredCandidate struct {
	Passage Passage         `json:"passage"`
	Score   float64         `json:"score"`
	Signal  RetrievalSignal `json:"signal"`
}

// FusedResult is a candidate after reciprocal rank fusion. Ordering across
// FusedResults is the contract surface handed to the reranker.
type FusedResult struct {
	Passage  Passage `json:"passage"`
	RRFScore float64 `json:"rrf_score"`
	InSparse bool    `json:"in_sparse"`
	InDense  bool    `json:"in_dense"`
}

// RerankedResult is what the answer synthesizer consumes. Relevance is the
// cross-encoder score in [0,1]; when the reranker degraded, Relevance carries
// the RRF score instead so downstream confidence math still has a signal.
type RerankedResult struct {
	Passage   Passage `json:"passage"`
	RRFScore  float64 `json:"rrf_score"`
	Relevance float64 `json:"relevance"`
	Rank      int     `json:"rank"`
}

// RankedText is one reranker response entry, mapping back into the candidate
// slice by index.
type RankedText struct {
	Index     int
	Relevance float64
}

// SparseStats describes the current sparse index segment.
type SparseStats struct {
	Indexed          bool    `json:"indexed"`
	PassageCount     int     `json:"passage_count"`
	AvgPassageTokens float64 `json:"avg_passage_tokens"`
}
