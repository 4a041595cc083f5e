package dataset

import (
	"errors"
	"fmt"
)

// ErrEmptyDataset is returned by aggregations over a dataset with no rows.
var ErrEmptyDataset = errors.New("dataset has no rows")

// LoadError reports a dataset source that is missing, malformed or lacks
// required columns.
type LoadError struct {
	Source string
	Reason string
	cause  error
}

func (e *LoadError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("load dataset %s: %s: %v", e.Source, e.Reason, e.cause)
	}
	return fmt.Sprintf("load dataset %s: %s", e.Source, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.cause }

// UnsupportedColumnError reports a column that is unknown or cannot be
// aggregated numerically.
type UnsupportedColumnError struct {
	Column string
}

func (e *UnsupportedColumnError) Error() string {
	return fmt.Sprintf("unsupported column %q", e.Column)
}
