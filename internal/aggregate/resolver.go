// Package aggregate answers statistical intents directly from the dataset.
package aggregate

import (
	"errors"
	"fmt"

	"placementqa/internal/dataset"
	"placementqa/internal/domain"
	"placementqa/internal/passage"
)

// ErrNeedsFallback marks an intent the resolver cannot answer; callers
// should fall back to semantic search.
var ErrNeedsFallback = errors.New("aggregation cannot answer intent")

// Resolve executes an aggregation intent against ds and formats the answer.
//
// Errors wrap ErrNeedsFallback when semantic search should take over and
// dataset.ErrEmptyDataset when there are no rows to aggregate.
func Resolve(ds *dataset.Dataset, intent domain.Intent) (string, error) {
	if !intent.IsAggregation() {
		return "", fmt.Errorf("%w: not an aggregation", ErrNeedsFallback)
	}
	if intent.Op == domain.OpCount {
		return count(ds, intent)
	}
	if !dataset.IsNumeric(intent.Column) {
		return "", fmt.Errorf("%w: %w", ErrNeedsFallback, &dataset.UnsupportedColumnError{Column: intent.Column})
	}

	switch intent.Op {
	case domain.OpMax, domain.OpMin:
		extreme, lookup := "highest", ds.ArgMax
		if intent.Op == domain.OpMin {
			extreme, lookup = "lowest", ds.ArgMin
		}
		r, v, err := lookup(intent.Column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("The %s %s is %s, belonging to %s, who studied %s in %s at %s.",
			extreme, intent.Column, formatValue(intent.Column, v), r.Name, r.Degree, r.Stream, r.CollegeName), nil
	case domain.OpMean:
		mean, err := ds.Mean(intent.Column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("The average %s is %.2f.", intent.Column, mean), nil
	}
	return "", fmt.Errorf("%w: operator %s", ErrNeedsFallback, intent.Op)
}

func count(ds *dataset.Dataset, intent domain.Intent) (string, error) {
	total := ds.Count()
	if intent.Filter != domain.FilterPlaced {
		return fmt.Sprintf("There are %d students in the dataset.", total), nil
	}
	if total == 0 {
		return "", dataset.ErrEmptyDataset
	}
	placed := ds.CountWhere(dataset.IsPlaced)
	pct := float64(placed) / float64(total) * 100
	return fmt.Sprintf("%d out of %d students were placed (%.1f%%).", placed, total, pct), nil
}

func formatValue(column string, v float64) string {
	if column == domain.ColumnAge {
		return fmt.Sprintf("%d", int(v))
	}
	return passage.FormatNumber(v)
}
