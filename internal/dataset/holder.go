package dataset

import (
	"context"
	"errors"
	"sync/atomic"
)

// Holder gives readers the current dataset snapshot and lets a reload swap
// in a new one without locking readers.
type Holder struct {
	current atomic.Pointer[Dataset]
}

// NewHolder returns a holder serving ds.
func NewHolder(ds *Dataset) *Holder {
	h := &Holder{}
	h.current.Store(ds)
	return h
}

// Current returns the active snapshot.
func (h *Holder) Current() *Dataset { return h.current.Load() }

// Swap installs ds and returns the previous snapshot.
func (h *Holder) Swap(ds *Dataset) *Dataset { return h.current.Swap(ds) }

// Reload builds a new snapshot with load and installs it. On failure the
// current snapshot stays in place.
func (h *Holder) Reload(ctx context.Context, load Loader) (*Dataset, error) {
	ds, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, errors.New("loader returned no dataset")
	}
	h.current.Store(ds)
	return ds, nil
}
