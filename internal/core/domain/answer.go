package domain

import "time"

type CitationMethod string

const (
	CitationExplicit CitationMethod = "explicit"
	CitationInferred CitationMethod = "inferred"
)

// Citation is a (source, page, extraction-method) triple. Explicit citations
// are parsed from the generated text; inferred ones are assumed from the top
// passages when the model emitted no markers and are provenance hints, not
// verified grounding.
type Citation struct {
	Source string         `json:"source"`
	Page   string         `json:"page"`
	Method CitationMethod `json:"method"`
}

// UsedPassage records one passage that went into the generation context.
type UsedPassage struct {
	Source string  `json:"source"`
	Page   string  `json:"page"`
	Score  float64 `json:"score"`
}

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// ConfidenceLevelFor discretizes a confidence value with fixed thresholds.
func ConfidenceLevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.7:
		return ConfidenceHigh
	case confidence >= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

const (
	// NoInformationAnswer is the fixed answer for queries where retrieval
	// produced no usable passages.
	NoInformationAnswer = "I couldn't find any relevant documents to answer your question. Please try rephrasing or check if documents have been ingested."

	// GenerationFailureAnswer is the fixed answer when the generation call
	// failed; the request still succeeds with this degraded payload.
	GenerationFailureAnswer = "I encountered an error generating the answer. Please try again."
)

type AnswerResult struct {
	Question        string          `json:"question"`
	Answer          string          `json:"answer"`
	Citations       []Citation      `json:"citations"`
	ContextUsed     []UsedPassage   `json:"context_used"`
	Confidence      float64         `json:"confidence"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level,omitempty"`
	Model           string          `json:"model"`
	GenerationError string          `json:"generation_error,omitempty"`

	// Pipeline observations for the serving layer's instrumentation; not part
	// of the response payload.
	RerankDegraded bool          `json:"-"`
	RerankDuration time.Duration `json:"-"`
}

// NoInformationResult builds the short-circuit answer for an empty passage set.
func NoInformationResult(question, model string) *AnswerResult {
	return &AnswerResult{
		Question:        question,
		Answer:          NoInformationAnswer,
		Citations:       []Citation{},
		ContextUsed:     []UsedPassage{},
		Confidence:      0,
		ConfidenceLevel: ConfidenceLow,
		Model:           model,
	}
}

// SystemStats is the administrative view over the pipeline. Counters are
// monotonic aggregates updated atomically across queries.
type SystemStats struct {
	SparseIndexed      bool    `json:"sparse_indexed"`
	PassageCount       int     `json:"passage_count"`
	AvgPassageTokens   float64 `json:"avg_passage_tokens"`
	TotalQueries       uint64  `json:"total_queries"`
	NoContextTotal     uint64  `json:"no_context_total"`
	RerankFallbacks    uint64  `json:"rerank_fallbacks"`
	AvgRerankLatencyMS float64 `json:"avg_rerank_latency_ms"`
}
