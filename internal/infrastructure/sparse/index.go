package sparse

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

// BM25 Okapi parameters, matching the rank_bm25 defaults: negative IDF values
// are floored at epsilon times the mean IDF.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

type posting struct {
	doc int
	tf  int
}

// segment is one immutable build of the index. Queries only ever see a fully
// constructed segment; rebuilds create a new one and swap the pointer.
type segment struct {
	passages    []domain.Passage
	tokenized   [][]string
	docLen      []int
	avgdl       float64
	postings    map[string][]posting
	idf         map[string]float64
	totalTokens int
}

func newSegment(passages []domain.Passage, tokenized [][]string) *segment {
	seg := &segment{
		passages:  passages,
		tokenized: tokenized,
		docLen:    make([]int, len(tokenized)),
		postings:  make(map[string][]posting),
		idf:       make(map[string]float64),
	}

	for doc, tokens := range tokenized {
		seg.docLen[doc] = len(tokens)
		seg.totalTokens += len(tokens)

		freq := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freq[tok]++
		}
		for tok, tf := range freq {
			seg.postings[tok] = append(seg.postings[tok], posting{doc: doc, tf: tf})
		}
	}
	if len(tokenized) > 0 {
		seg.avgdl = float64(seg.totalTokens) / float64(len(tokenized))
	}

	n := float64(len(tokenized))
	idfSum := 0.0
	var negative []string
	for tok, plist := range seg.postings {
		df := float64(len(plist))
		idf := math.Log((n - df + 0.5) / (df + 0.5))
		seg.idf[tok] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, tok)
		}
	}
	if len(seg.idf) > 0 {
		floor := bm25Epsilon * idfSum / float64(len(seg.idf))
		for _, tok := range negative {
			seg.idf[tok] = floor
		}
	}
	return seg
}

func (s *segment) scores(queryTokens []string) []float64 {
	scores := make([]float64, len(s.passages))
	for _, tok := range queryTokens {
		idf, ok := s.idf[tok]
		if !ok {
			continue
		}
		for _, p := range s.postings[tok] {
			tf := float64(p.tf)
			norm := 1 - bm25B + bm25B*float64(s.docLen[p.doc])/s.avgdl
			scores[p.doc] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}
	return scores
}

// Index is the in-process keyword ranking structure. It is built once
// (single-writer) and read concurrently by any number of queries; a rebuild
// constructs a fresh segment and publishes it atomically, never mutating a
// segment readers may hold.
type Index struct {
	current atomic.Pointer[segment]
}

func New() *Index {
	return &Index{}
}

func (ix *Index) Build(passages []domain.Passage) error {
	if len(passages) == 0 {
		return domain.WrapError(domain.ErrEmptyCorpus, "build sparse index", errors.New("no passages to index"))
	}

	tokenized := make([][]string, len(passages))
	for i := range passages {
		tokenized[i] = Tokenize(passages[i].Content)
	}

	seg := newSegment(passages, tokenized)
	ix.current.Store(seg)

	slog.Info("sparse_index_built",
		"passages", len(passages),
		"avg_tokens", seg.avgdl,
		"terms", len(seg.postings),
	)
	return nil
}

// Search scores every passage against the query and returns the topK with a
// positive score, descending. Equal scores preserve corpus insertion order.
func (ix *Index) Search(query string, topK int) ([]domain.ScoredCandidate, error) {
	seg := ix.current.Load()
	if seg == nil {
		return nil, domain.WrapError(domain.ErrIndexNotBuilt, "sparse search", errors.New("build was not called"))
	}
	if topK <= 0 {
		return nil, nil
	}

	scores := seg.scores(Tokenize(query))

	matched := make([]int, 0, len(scores))
	for doc, score := range scores {
		if score > 0 {
			matched = append(matched, doc)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return scores[matched[i]] > scores[matched[j]]
	})
	if len(matched) > topK {
		matched = matched[:topK]
	}

	out := make([]domain.ScoredCandidate, 0, len(matched))
	for _, doc := range matched {
		out = append(out, domain.ScoredCandidate{
			Passage: seg.passages[doc],
			Score:   scores[doc],
			Signal:  domain.SignalSparse,
		})
	}
	return out, nil
}

func (ix *Index) Stats() domain.SparseStats {
	seg := ix.current.Load()
	if seg == nil {
		return domain.SparseStats{}
	}
	return domain.SparseStats{
		Indexed:          true,
		PassageCount:     len(seg.passages),
		AvgPassageTokens: seg.avgdl,
	}
}
