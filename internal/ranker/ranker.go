// Package ranker scores passage vectors against a question vector and turns
// the best matches into an answer.
package ranker

import (
	"math"
	"sort"
	"strings"

	"github.com/hupe1980/vecgo/distance"
)

// Defaults used when no configuration overrides them.
const (
	DefaultTopK     = 3
	DefaultMinScore = 0.3
)

// NotFound is returned when no passage is similar enough to the question.
const NotFound = "I couldn't find specific information about that in the college data."

// Hit is a scored passage position.
type Hit struct {
	Index int
	Score float64
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// is zero or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := distance.Dot(a, a)
	nb := distance.Dot(b, b)
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(distance.Dot(a, b)) / (math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
}

// Rank scores every vector against q and returns the top k by descending
// score. k is clamped to the number of vectors; equal scores keep passage
// order.
func Rank(q []float32, vectors [][]float32, k int) []Hit {
	hits := make([]Hit, len(vectors))
	for i, v := range vectors {
		hits[i] = Hit{Index: i, Score: Cosine(q, v)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < 0 {
		k = 0
	}
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// Compose joins the texts of hits, best first, separated by a blank line.
// It returns NotFound and false when there are no hits or the best score is
// below minScore.
func Compose(hits []Hit, texts []string, minScore float64) (string, bool) {
	if len(hits) == 0 {
		return NotFound, false
	}
	best := hits[0].Score
	for _, h := range hits[1:] {
		best = max(best, h.Score)
	}
	if best < minScore {
		return NotFound, false
	}
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Index >= 0 && h.Index < len(texts) {
			parts = append(parts, texts[h.Index])
		}
	}
	return strings.Join(parts, "\n\n"), true
}
