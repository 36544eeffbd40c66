// Package evaluation implements offline quality metrics for judged query
// sets: retrieval ranking metrics (precision@K, recall@K, MAP, MRR, NDCG) and
// answer-level metrics (token F1, citation accuracy). It is benchmarking
// tooling, not part of the serving path; ground-truth relevance judgments are
// supplied by the caller.
package evaluation

import (
	"math"
	"sort"
	"strings"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

// PrecisionAtK is the fraction of the top-K retrieved passage IDs that are
// relevant. When fewer than K passages were retrieved, the denominator is the
// retrieved count, not K.
func PrecisionAtK(retrieved []string, relevant map[string]bool, k int) float64 {
	if len(retrieved) == 0 || len(relevant) == 0 || k <= 0 {
		return 0
	}
	top := topK(retrieved, k)
	return float64(hitCount(top, relevant)) / float64(len(top))
}

// RecallAtK is the fraction of relevant passage IDs present in the top-K.
func RecallAtK(retrieved []string, relevant map[string]bool, k int) float64 {
	if len(retrieved) == 0 || len(relevant) == 0 || k <= 0 {
		return 0
	}
	return float64(hitCount(topK(retrieved, k), relevant)) / float64(len(relevant))
}

// AveragePrecision averages precision-at-hit over every relevant passage:
// AP = sum(P@i for each relevant hit at rank i) / |relevant|.
func AveragePrecision(retrieved []string, relevant map[string]bool) float64 {
	if len(retrieved) == 0 || len(relevant) == 0 {
		return 0
	}
	sum := 0.0
	hits := 0
	for i, id := range retrieved {
		if relevant[id] {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	if hits == 0 {
		return 0
	}
	return sum / float64(len(relevant))
}

// MeanReciprocalRank averages 1/rank of the first relevant hit across queries.
// Queries with no judged-relevant passages are skipped; queries where nothing
// relevant was retrieved contribute zero.
func MeanReciprocalRank(runs [][]string, relevants []map[string]bool) float64 {
	sum := 0.0
	counted := 0
	for q, retrieved := range runs {
		if q >= len(relevants) || len(relevants[q]) == 0 {
			continue
		}
		counted++
		for rank, id := range retrieved {
			if relevants[q][id] {
				sum += 1.0 / float64(rank+1)
				break
			}
		}
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// BinaryGrades turns a relevant-set judgment into graded relevance for NDCG.
func BinaryGrades(relevant map[string]bool) map[string]float64 {
	grades := make(map[string]float64, len(relevant))
	for id, ok := range relevant {
		if ok {
			grades[id] = 1
		}
	}
	return grades
}

// NDCGAtK is the normalized discounted cumulative gain over the top-K, with
// gain (2^grade - 1) and log2 position discount. A perfect ranking scores 1.
func NDCGAtK(retrieved []string, grades map[string]float64, k int) float64 {
	if len(retrieved) == 0 || len(grades) == 0 || k <= 0 {
		return 0
	}

	dcg := 0.0
	for i, id := range topK(retrieved, k) {
		dcg += gain(grades[id]) / math.Log2(float64(i)+2)
	}

	ideal := make([]float64, 0, len(grades))
	for _, g := range grades {
		ideal = append(ideal, g)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	if len(ideal) > k {
		ideal = ideal[:k]
	}
	idcg := 0.0
	for i, g := range ideal {
		idcg += gain(g) / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func gain(grade float64) float64 {
	return math.Pow(2, grade) - 1
}

// RetrievalReport aggregates ranking metrics over a judged query set.
type RetrievalReport struct {
	Queries     int             `json:"queries"`
	PrecisionAt map[int]float64 `json:"precision_at"`
	RecallAt    map[int]float64 `json:"recall_at"`
	MAP         float64         `json:"map"`
	MRR         float64         `json:"mrr"`
}

// EvaluateRetrieval scores one retrieval run per query against its judgment.
// ks defaults to 1, 3, 5, 10.
func EvaluateRetrieval(runs [][]string, relevants []map[string]bool, ks []int) RetrievalReport {
	if len(ks) == 0 {
		ks = []int{1, 3, 5, 10}
	}

	report := RetrievalReport{
		Queries:     len(runs),
		PrecisionAt: make(map[int]float64, len(ks)),
		RecallAt:    make(map[int]float64, len(ks)),
		MRR:         MeanReciprocalRank(runs, relevants),
	}
	if len(runs) == 0 {
		return report
	}

	for _, k := range ks {
		pSum, rSum := 0.0, 0.0
		for q, retrieved := range runs {
			pSum += PrecisionAtK(retrieved, relevants[q], k)
			rSum += RecallAtK(retrieved, relevants[q], k)
		}
		report.PrecisionAt[k] = pSum / float64(len(runs))
		report.RecallAt[k] = rSum / float64(len(runs))
	}

	apSum := 0.0
	for q, retrieved := range runs {
		apSum += AveragePrecision(retrieved, relevants[q])
	}
	report.MAP = apSum / float64(len(runs))

	return report
}

// ExactMatch compares a generated answer to a reference after case folding
// and trimming.
func ExactMatch(prediction, reference string) bool {
	return strings.TrimSpace(strings.ToLower(prediction)) == strings.TrimSpace(strings.ToLower(reference))
}

// TokenF1 is the F1 over the distinct lowercase token sets of prediction and
// reference.
func TokenF1(prediction, reference string) float64 {
	pred := tokenSet(prediction)
	ref := tokenSet(reference)
	if len(pred) == 0 || len(ref) == 0 {
		return 0
	}

	common := 0
	for tok := range pred {
		if ref[tok] {
			common++
		}
	}
	if common == 0 {
		return 0
	}

	precision := float64(common) / float64(len(pred))
	recall := float64(common) / float64(len(ref))
	return 2 * precision * recall / (precision + recall)
}

// CitationAccuracy is the F1 between predicted and reference citations,
// compared as (source, page) pairs. With no reference citations, an answer is
// correct exactly when it cites nothing.
func CitationAccuracy(predicted, reference []domain.Citation) float64 {
	if len(reference) == 0 {
		if len(predicted) == 0 {
			return 1
		}
		return 0
	}
	if len(predicted) == 0 {
		return 0
	}

	pred := citationSet(predicted)
	ref := citationSet(reference)

	common := 0
	for key := range pred {
		if ref[key] {
			common++
		}
	}
	if common == 0 {
		return 0
	}

	precision := float64(common) / float64(len(pred))
	recall := float64(common) / float64(len(ref))
	return 2 * precision * recall / (precision + recall)
}

func topK(retrieved []string, k int) []string {
	if len(retrieved) > k {
		return retrieved[:k]
	}
	return retrieved
}

func hitCount(retrieved []string, relevant map[string]bool) int {
	hits := 0
	for _, id := range retrieved {
		if relevant[id] {
			hits++
		}
	}
	return hits
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = true
	}
	return set
}

func citationSet(citations []domain.Citation) map[[2]string]bool {
	set := make(map[[2]string]bool, len(citations))
	for _, c := range citations {
		set[[2]string{c.Source, c.Page}] = true
	}
	return set
}
