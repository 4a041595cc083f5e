// Package embedding keeps the process-wide set of loaded embedding models.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"placementqa/internal/domain"
)

// Logical model names.
const (
	ModelFast     = "fast"
	ModelAccurate = "accurate"
)

// ModelLoadError reports an embedding backend that could not be created.
type ModelLoadError struct {
	Model string
	cause error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load embedding model %q: %v", e.Model, e.cause)
}

func (e *ModelLoadError) Unwrap() error { return e.cause }

// Factory builds the model behind a logical name.
type Factory func(ctx context.Context) (domain.Model, error)

type options struct {
	loadTimeout time.Duration
	logger      *slog.Logger
	onLoad      func(model string, d time.Duration, err error)
}

// Option configures a Registry.
type Option func(*options)

// WithLoadTimeout bounds how long a factory may run.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) { o.loadTimeout = d }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLoadHook registers a callback invoked after every factory run.
func WithLoadHook(fn func(model string, d time.Duration, err error)) Option {
	return func(o *options) { o.onLoad = fn }
}

// Registry lazily creates at most one model per logical name and keeps it
// until Reset. Reads of loaded models take no lock.
type Registry struct {
	factories map[string]Factory
	opts      options
	models    sync.Map // name -> domain.Model
	group     singleflight.Group
}

// NewRegistry returns a registry over factories. The "fast" factory is
// required since unknown names resolve to it.
func NewRegistry(factories map[string]Factory, opts ...Option) (*Registry, error) {
	if _, ok := factories[ModelFast]; !ok {
		return nil, fmt.Errorf("embedding registry: no factory for %q", ModelFast)
	}
	o := options{loadTimeout: 30 * time.Second, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	fs := make(map[string]Factory, len(factories))
	for name, f := range factories {
		fs[strings.ToLower(name)] = f
	}
	return &Registry{factories: fs, opts: o}, nil
}

// Resolve maps a requested model name to a registered logical name.
func (r *Registry) Resolve(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := r.factories[name]; ok {
		return name
	}
	return ModelFast
}

// Names lists the registered logical names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model returns the loaded model for name, creating it on first use.
// Concurrent first requests share a single factory call.
func (r *Registry) Model(ctx context.Context, name string) (domain.Model, error) {
	name = r.Resolve(name)
	if m, ok := r.models.Load(name); ok {
		return m.(domain.Model), nil
	}
	ch := r.group.DoChan(name, func() (any, error) {
		if m, ok := r.models.Load(name); ok {
			return m, nil
		}
		// not tied to the first caller's cancellation; other callers may be waiting
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.loadTimeout)
		defer cancel()

		start := time.Now()
		m, err := r.factories[name](loadCtx)
		elapsed := time.Since(start)
		if r.opts.onLoad != nil {
			r.opts.onLoad(name, elapsed, err)
		}
		if err != nil {
			r.opts.logger.Error("embedding model load failed", "model", name, "error", err)
			return nil, &ModelLoadError{Model: name, cause: err}
		}
		r.opts.logger.Info("embedding model loaded", "model", name, "backend", m.Name(), "elapsed", elapsed)
		r.models.Store(name, m)
		return m, nil
	})
	select {
	case <-ctx.Done():
		return nil, &ModelLoadError{Model: name, cause: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domain.Model), nil
	}
}

// Loaded reports whether name has a cached model.
func (r *Registry) Loaded(name string) bool {
	_, ok := r.models.Load(r.Resolve(name))
	return ok
}

// Reset drops every cached model.
func (r *Registry) Reset() {
	r.models.Range(func(key, _ any) bool {
		r.models.Delete(key)
		return true
	})
}
