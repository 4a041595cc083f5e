// Package summarizer describes a dataset snapshot in one line for display.
package summarizer

import (
	"fmt"
	"sort"
	"strings"

	"placementqa/internal/dataset"
	"placementqa/internal/domain"
)

// Overview returns a one-line description of ds: row count, placement rate,
// average GPA and the most frequent colleges (at most topN).
func Overview(ds *dataset.Dataset, topN int) string {
	total := ds.Count()
	if total == 0 {
		return "No students loaded."
	}
	placed := ds.CountWhere(dataset.IsPlaced)
	parts := []string{
		fmt.Sprintf("%d students", total),
		fmt.Sprintf("%d placed (%.1f%%)", placed, float64(placed)/float64(total)*100),
	}
	if gpa, err := ds.Mean(domain.ColumnGPA); err == nil {
		parts = append(parts, fmt.Sprintf("average GPA %.2f", gpa))
	}
	if top := TopColleges(ds.Rows(), topN); len(top) > 0 {
		parts = append(parts, "top colleges: "+strings.Join(top, ", "))
	}
	return strings.Join(parts, " · ")
}

// TopColleges ranks colleges by number of students, most frequent first.
// Ties keep first-appearance order.
func TopColleges(rows []domain.Record, n int) []string {
	if n <= 0 {
		return nil
	}
	freq := map[string]int{}
	var order []string
	for _, r := range rows {
		name := strings.TrimSpace(r.CollegeName)
		if name == "" {
			continue
		}
		if _, ok := freq[name]; !ok {
			order = append(order, name)
		}
		freq[name]++
	}
	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if n > len(order) {
		n = len(order)
	}
	out := make([]string, n)
	for i, name := range order[:n] {
		out[i] = fmt.Sprintf("%s (%d)", name, freq[name])
	}
	return out
}
