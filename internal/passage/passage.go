// Package passage renders dataset records into the text passages used for
// semantic comparison.
package passage

import (
	"strconv"
	"strings"

	"placementqa/internal/domain"
)

// Render describes a record in one deterministic sentence pair.
func Render(r domain.Record) string {
	var sb strings.Builder
	sb.WriteString(r.Name)
	sb.WriteString(" is a ")
	sb.WriteString(strconv.Itoa(r.Age))
	sb.WriteString("-year-old student pursuing a ")
	sb.WriteString(r.Degree)
	sb.WriteString(" in ")
	sb.WriteString(r.Stream)
	sb.WriteString(" at ")
	sb.WriteString(r.CollegeName)
	sb.WriteString(". Placement status: ")
	sb.WriteString(r.PlacementStatus)
	sb.WriteString(", GPA: ")
	sb.WriteString(FormatNumber(r.GPA))
	sb.WriteString(", Salary: ")
	sb.WriteString(FormatNumber(r.Salary))
	sb.WriteString(", Experience: ")
	sb.WriteString(FormatNumber(r.YearsOfExperience))
	sb.WriteString(" years.")
	return sb.String()
}

// RenderAll renders every record, keeping row order as the passage index.
func RenderAll(records []domain.Record) []domain.Passage {
	out := make([]domain.Passage, len(records))
	for i, r := range records {
		out[i] = domain.Passage{Index: i, Text: Render(r)}
	}
	return out
}

// Texts returns the text of each passage.
func Texts(passages []domain.Passage) []string {
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.Text
	}
	return out
}

// FormatNumber prints v with the shortest representation that round-trips.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
