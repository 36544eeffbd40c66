package evaluation

import (
	"math"
	"testing"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

func relevantSet(ids ...string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPrecisionAtK(t *testing.T) {
	retrieved := []string{"a", "x", "b", "y", "c"}
	relevant := relevantSet("a", "b", "c")

	cases := []struct {
		k    int
		want float64
	}{
		{1, 1.0},
		{2, 0.5},
		{5, 3.0 / 5.0},
		{10, 3.0 / 5.0}, // only 5 retrieved, denominator shrinks
	}
	for _, tc := range cases {
		if got := PrecisionAtK(retrieved, relevant, tc.k); !almostEqual(got, tc.want) {
			t.Fatalf("PrecisionAtK(k=%d) = %v, want %v", tc.k, got, tc.want)
		}
	}

	if PrecisionAtK(nil, relevant, 5) != 0 || PrecisionAtK(retrieved, nil, 5) != 0 {
		t.Fatalf("empty inputs must score 0")
	}
}

func TestRecallAtK(t *testing.T) {
	retrieved := []string{"a", "x", "b"}
	relevant := relevantSet("a", "b", "c", "d")

	if got := RecallAtK(retrieved, relevant, 3); !almostEqual(got, 0.5) {
		t.Fatalf("RecallAtK = %v, want 0.5", got)
	}
	if got := RecallAtK(retrieved, relevant, 1); !almostEqual(got, 0.25) {
		t.Fatalf("RecallAtK(k=1) = %v, want 0.25", got)
	}
}

func TestAveragePrecision(t *testing.T) {
	// Hits at ranks 1 and 3: AP = (1/1 + 2/3) / 2.
	got := AveragePrecision([]string{"a", "x", "b"}, relevantSet("a", "b"))
	want := (1.0 + 2.0/3.0) / 2.0
	if !almostEqual(got, want) {
		t.Fatalf("AveragePrecision = %v, want %v", got, want)
	}

	if AveragePrecision([]string{"x", "y"}, relevantSet("a")) != 0 {
		t.Fatalf("no hits must score 0")
	}
}

func TestMeanReciprocalRank(t *testing.T) {
	runs := [][]string{
		{"a", "b"},      // first hit at rank 1
		{"x", "y", "b"}, // first hit at rank 3
		{"x", "y"},      // no hit
	}
	relevants := []map[string]bool{
		relevantSet("a"),
		relevantSet("b"),
		relevantSet("z"),
	}

	got := MeanReciprocalRank(runs, relevants)
	want := (1.0 + 1.0/3.0 + 0.0) / 3.0
	if !almostEqual(got, want) {
		t.Fatalf("MRR = %v, want %v", got, want)
	}

	// Queries without judgments are skipped, not counted as zero.
	got = MeanReciprocalRank([][]string{{"a"}, {"b"}}, []map[string]bool{relevantSet("a"), {}})
	if !almostEqual(got, 1.0) {
		t.Fatalf("unjudged query must be skipped, got %v", got)
	}
}

func TestNDCGAtK(t *testing.T) {
	grades := BinaryGrades(relevantSet("a", "b"))

	// Perfect ranking scores 1.
	if got := NDCGAtK([]string{"a", "b", "x"}, grades, 3); !almostEqual(got, 1.0) {
		t.Fatalf("perfect ranking NDCG = %v, want 1", got)
	}

	// Pushing a relevant passage down discounts the gain.
	demoted := NDCGAtK([]string{"a", "x", "b"}, grades, 3)
	if demoted >= 1.0 || demoted <= 0 {
		t.Fatalf("demoted ranking NDCG = %v, want in (0, 1)", demoted)
	}
	want := (1.0 + 1.0/math.Log2(4)) / (1.0 + 1.0/math.Log2(3))
	if !almostEqual(demoted, want) {
		t.Fatalf("demoted ranking NDCG = %v, want %v", demoted, want)
	}

	// Graded relevance: the higher-graded passage matters more.
	graded := map[string]float64{"a": 2, "b": 1}
	best := NDCGAtK([]string{"a", "b"}, graded, 2)
	swapped := NDCGAtK([]string{"b", "a"}, graded, 2)
	if !almostEqual(best, 1.0) || swapped >= best {
		t.Fatalf("graded NDCG ordering broken: best=%v swapped=%v", best, swapped)
	}
}

func TestEvaluateRetrieval(t *testing.T) {
	runs := [][]string{
		{"a", "x"},
		{"y", "b"},
	}
	relevants := []map[string]bool{
		relevantSet("a"),
		relevantSet("b"),
	}

	report := EvaluateRetrieval(runs, relevants, []int{1, 2})
	if report.Queries != 2 {
		t.Fatalf("unexpected query count: %+v", report)
	}
	// P@1: query one hits, query two misses.
	if !almostEqual(report.PrecisionAt[1], 0.5) {
		t.Fatalf("P@1 = %v, want 0.5", report.PrecisionAt[1])
	}
	if !almostEqual(report.RecallAt[2], 1.0) {
		t.Fatalf("R@2 = %v, want 1", report.RecallAt[2])
	}
	// AP: 1.0 for query one, 0.5 for query two.
	if !almostEqual(report.MAP, 0.75) {
		t.Fatalf("MAP = %v, want 0.75", report.MAP)
	}
	if !almostEqual(report.MRR, 0.75) {
		t.Fatalf("MRR = %v, want 0.75", report.MRR)
	}

	defaulted := EvaluateRetrieval(runs, relevants, nil)
	for _, k := range []int{1, 3, 5, 10} {
		if _, ok := defaulted.PrecisionAt[k]; !ok {
			t.Fatalf("default ks missing %d: %+v", k, defaulted.PrecisionAt)
		}
	}
}

func TestExactMatchNormalizes(t *testing.T) {
	if !ExactMatch("  The ratio is 14%.  ", "the ratio is 14%.") {
		t.Fatalf("expected normalized match")
	}
	if ExactMatch("yes", "no") {
		t.Fatalf("expected mismatch")
	}
}

func TestTokenF1(t *testing.T) {
	if got := TokenF1("capital ratio improved", "capital ratio improved"); !almostEqual(got, 1.0) {
		t.Fatalf("identical answers F1 = %v, want 1", got)
	}
	if got := TokenF1("capital ratio", "liquidity coverage"); got != 0 {
		t.Fatalf("disjoint answers F1 = %v, want 0", got)
	}

	// 2 common tokens, 3 predicted, 2 reference: P=2/3, R=1.
	got := TokenF1("the capital ratio", "capital ratio")
	want := 2 * (2.0 / 3.0) * 1.0 / (2.0/3.0 + 1.0)
	if !almostEqual(got, want) {
		t.Fatalf("TokenF1 = %v, want %v", got, want)
	}
}

func TestCitationAccuracy(t *testing.T) {
	ref := []domain.Citation{
		{Source: "report.pdf", Page: "4"},
		{Source: "policy.pdf", Page: "2"},
	}

	exact := []domain.Citation{
		{Source: "report.pdf", Page: "4", Method: domain.CitationExplicit},
		{Source: "policy.pdf", Page: "2", Method: domain.CitationInferred},
	}
	if got := CitationAccuracy(exact, ref); !almostEqual(got, 1.0) {
		t.Fatalf("exact citations F1 = %v, want 1 (method must be ignored)", got)
	}

	// One of two predictions correct: P=0.5, R=0.5.
	partial := []domain.Citation{
		{Source: "report.pdf", Page: "4"},
		{Source: "other.pdf", Page: "9"},
	}
	if got := CitationAccuracy(partial, ref); !almostEqual(got, 0.5) {
		t.Fatalf("partial citations F1 = %v, want 0.5", got)
	}

	if got := CitationAccuracy(nil, nil); !almostEqual(got, 1.0) {
		t.Fatalf("no citations expected and none given must score 1, got %v", got)
	}
	if got := CitationAccuracy(exact, nil); got != 0 {
		t.Fatalf("uncited reference with predictions must score 0, got %v", got)
	}
}
