package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
	"github.com/vkuzmich/fintech-rag/internal/core/ports"
)

// groundedSystemPrompt is the fixed grounded-answer contract sent with every
// generation call.
const groundedSystemPrompt = `You are a FinTech knowledge assistant. Your role is to answer questions based strictly on the provided context from internal documents.

CRITICAL RULES:
1. ONLY use information from the provided context
2. CITE sources for every claim using [Source: filename, Page: X]
3. If the context doesn't contain the answer, say "I don't have enough information to answer this question based on the available documents."
4. Be precise with financial terms, regulations, and numbers
5. If multiple documents provide conflicting information, acknowledge this
6. Use clear, professional language suitable for financial professionals`

const defaultMaxContextLen = 16000

const maxInferredCitations = 3

var (
	explicitCitationRe    = regexp.MustCompile(`\[Source:\s*([^,\]]+),\s*Page:\s*([^\]]+)\]`)
	parentheticalSourceRe = regexp.MustCompile(`\(Source:\s*([^)]+)\)`)
)

// synthesizer turns the reranked passage set into a grounded, cited,
// confidence-scored answer.
type synthesizer struct {
	generator     ports.Generator
	maxContextLen int
}

func newSynthesizer(generator ports.Generator, maxContextLen int) *synthesizer {
	if maxContextLen <= 0 {
		maxContextLen = defaultMaxContextLen
	}
	return &synthesizer{generator: generator, maxContextLen: maxContextLen}
}

// generate produces the answer. A non-nil error is returned only for context
// expiry on the generation call (no sensible fallback answer exists there);
// every other generator failure degrades into a fixed apology with an error
// marker so the caller can still return a usable payload.
func (s *synthesizer) generate(ctx context.Context, question string, passages []domain.RerankedResult, wantConfidence bool) (*domain.AnswerResult, error) {
	if len(passages) == 0 {
		return domain.NoInformationResult(question, s.generator.Model()), nil
	}

	contextStr := buildContext(passages, s.maxContextLen)
	prompt := fmt.Sprintf("Context from documents:\n%s\n\nQuestion: %s\n\nProvide a comprehensive answer with proper citations.", contextStr, question)

	result := &domain.AnswerResult{
		Question:    question,
		Citations:   []domain.Citation{},
		ContextUsed: usedPassages(passages),
		Model:       s.generator.Model(),
	}

	answer, err := s.generator.Generate(ctx, groundedSystemPrompt, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, domain.WrapError(domain.ErrUpstreamTimeout, "generate answer", err)
		}
		slog.Error("generation_degraded", "error", err)
		result.Answer = domain.GenerationFailureAnswer
		result.GenerationError = err.Error()
		if wantConfidence {
			result.Confidence = 0
			result.ConfidenceLevel = domain.ConfidenceLow
		}
		return result, nil
	}

	result.Answer = answer
	result.Citations = extractCitations(answer, passages)

	if wantConfidence {
		result.Confidence = confidenceScore(passages, len(result.Citations) > 0)
		result.ConfidenceLevel = domain.ConfidenceLevelFor(result.Confidence)
	}
	return result, nil
}

// buildContext concatenates passage blocks in ranking order until the next
// block would exceed maxLength. Stopping early is the intended truncation
// policy; a block is never cut in the middle.
func buildContext(passages []domain.RerankedResult, maxLength int) string {
	var b strings.Builder
	total := 0
	for idx, p := range passages {
		block := fmt.Sprintf("[Document %d]\nSource: %s\nPage: %s\nContent: %s\n\n",
			idx+1, p.Passage.Source, p.Passage.Page, p.Passage.Content)
		if total+len(block) > maxLength {
			break
		}
		b.WriteString(block)
		total += len(block)
	}
	return b.String()
}

// extractCitations scans the generated text for explicit citation markers.
// When none exist, up to three inferred citations are synthesized from the
// top-ranked passages; those are provenance hints, not verified grounding.
func extractCitations(answer string, passages []domain.RerankedResult) []domain.Citation {
	citations := []domain.Citation{}

	for _, m := range explicitCitationRe.FindAllStringSubmatch(answer, -1) {
		citations = append(citations, domain.Citation{
			Source: strings.TrimSpace(m[1]),
			Page:   strings.TrimSpace(m[2]),
			Method: domain.CitationExplicit,
		})
	}
	for _, m := range parentheticalSourceRe.FindAllStringSubmatch(answer, -1) {
		citations = append(citations, domain.Citation{
			Source: strings.TrimSpace(m[1]),
			Page:   "N/A",
			Method: domain.CitationExplicit,
		})
	}

	if len(citations) > 0 {
		return citations
	}
	for i, p := range passages {
		if i == maxInferredCitations {
			break
		}
		citations = append(citations, domain.Citation{
			Source: p.Passage.Source,
			Page:   p.Passage.Page,
			Method: domain.CitationInferred,
		})
	}
	return citations
}

// confidenceScore is a heuristic proxy for answer trustworthiness, not a
// calibrated probability: average relevance of the top three passages plus a
// document-count bonus and a citation bonus, capped at 1.
func confidenceScore(passages []domain.RerankedResult, hasCitations bool) float64 {
	if len(passages) == 0 {
		return 0
	}

	n := len(passages)
	if n > 3 {
		n = 3
	}
	sum := 0.0
	for _, p := range passages[:n] {
		sum += p.Relevance
	}
	confidence := sum / float64(n)

	docBonus := float64(len(passages)) / 5.0
	if docBonus > 0.2 {
		docBonus = 0.2
	}
	confidence += docBonus

	if hasCitations {
		confidence += 0.1
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func usedPassages(passages []domain.RerankedResult) []domain.UsedPassage {
	out := make([]domain.UsedPassage, 0, len(passages))
	for _, p := range passages {
		out = append(out, domain.UsedPassage{
			Source: p.Passage.Source,
			Page:   p.Passage.Page,
			Score:  p.Relevance,
		})
	}
	return out
}
