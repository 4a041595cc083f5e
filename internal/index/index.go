// Package index builds and caches the passage vector space of each
// (embedding model, dataset snapshot) pair.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"placementqa/internal/dataset"
	"placementqa/internal/domain"
	"placementqa/internal/embedding"
	"placementqa/internal/metrics"
	"placementqa/internal/passage"
	"placementqa/internal/vectorcache"
	"placementqa/internal/vectorstore"
)

// Space is the encoded passage corpus of one dataset snapshot under one model.
type Space struct {
	Model       string
	Fingerprint string
	Passages    []domain.Passage
	Embedder    domain.Embedder
	Store       domain.VectorStore
}

// Search encodes question and returns the topK most similar passages.
func (s *Space) Search(ctx context.Context, question string, topK int) ([]domain.SearchResult, error) {
	if len(s.Passages) == 0 {
		return nil, nil
	}
	q, err := s.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	return s.Store.Search(ctx, q, topK)
}

// Texts returns passage texts indexed by passage position.
func (s *Space) Texts() []string { return passage.Texts(s.Passages) }

// Index hands out Spaces, building each at most once.
type Index struct {
	registry     *embedding.Registry
	stores       vectorstore.Factory
	cache        *vectorcache.Cache
	buildTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics

	group  singleflight.Group
	mu     sync.RWMutex
	spaces map[string]*Space
}

// Option configures an Index.
type Option func(*Index)

// WithCache enables the on-disk vector cache.
func WithCache(c *vectorcache.Cache) Option { return func(x *Index) { x.cache = c } }

// WithBuildTimeout bounds the time spent encoding a corpus.
func WithBuildTimeout(d time.Duration) Option { return func(x *Index) { x.buildTimeout = d } }

// WithLogger sets the index logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Index) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithMetrics records index builds.
func WithMetrics(m *metrics.Metrics) Option { return func(x *Index) { x.metrics = m } }

// New returns an Index loading models from registry and storing vectors in
// stores created by the factory.
func New(registry *embedding.Registry, stores vectorstore.Factory, opts ...Option) *Index {
	x := &Index{
		registry:     registry,
		stores:       stores,
		buildTimeout: 2 * time.Minute,
		logger:       slog.New(slog.DiscardHandler),
		spaces:       make(map[string]*Space),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func key(model, fingerprint string) string { return model + "|" + fingerprint }

// Space returns the vector space for ds under the model selected by name,
// building it on first use.
func (x *Index) Space(ctx context.Context, name string, ds *dataset.Dataset) (*Space, error) {
	name = x.registry.Resolve(name)
	k := key(name, ds.Fingerprint())

	x.mu.RLock()
	sp, ok := x.spaces[k]
	x.mu.RUnlock()
	if ok {
		return sp, nil
	}

	ch := x.group.DoChan(k, func() (any, error) {
		x.mu.RLock()
		sp, ok := x.spaces[k]
		x.mu.RUnlock()
		if ok {
			return sp, nil
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.buildTimeout)
		defer cancel()
		sp, err := x.build(buildCtx, name, ds)
		if err != nil {
			return nil, err
		}
		x.mu.Lock()
		x.spaces[k] = sp
		x.mu.Unlock()
		return sp, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Space), nil
	}
}

func (x *Index) build(ctx context.Context, name string, ds *dataset.Dataset) (*Space, error) {
	model, err := x.registry.Model(ctx, name)
	if err != nil {
		return nil, err
	}
	passages := passage.RenderAll(ds.Rows())
	sp := &Space{Model: name, Fingerprint: ds.Fingerprint(), Passages: passages}
	if len(passages) == 0 {
		return sp, nil
	}
	texts := passage.Texts(passages)

	embedder, err := model.Prepare(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", name, err)
	}
	sp.Embedder = embedder

	vectors, origin, err := x.vectors(ctx, name, embedder, ds.Fingerprint(), texts)
	if err != nil {
		return nil, err
	}

	store, err := x.stores(ctx, name, ds.Fingerprint())
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	if err := store.Init(ctx, len(vectors[0])); err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	if err := store.Upsert(ctx, passages, vectors); err != nil {
		return nil, fmt.Errorf("upsert passages: %w", err)
	}
	sp.Store = store

	if x.metrics != nil {
		x.metrics.IndexBuilds.WithLabelValues(name, origin).Inc()
	}
	x.logger.InfoContext(ctx, "passage index built",
		"model", name,
		"backend", embedder.Name(),
		"passages", len(passages),
		"dimension", len(vectors[0]),
		"origin", origin,
		"fingerprint", ds.Fingerprint(),
	)
	return sp, nil
}

// passageFormat versions cached vectors. Bump it whenever passage rendering
// or local tokenization changes what a vector means.
const passageFormat = 2

func cacheKey(name, backend string) string {
	return fmt.Sprintf("%s.%s.v%d", name, backend, passageFormat)
}

// usable reports whether cached vectors fit the corpus and the embedder.
func usable(cached [][]float32, texts []string, embedder domain.Embedder) bool {
	if len(cached) != len(texts) || len(cached) == 0 {
		return false
	}
	dim := len(cached[0])
	if dim == 0 || (embedder.Dimension() > 0 && dim != embedder.Dimension()) {
		return false
	}
	for _, v := range cached[1:] {
		if len(v) != dim {
			return false
		}
	}
	return true
}

func (x *Index) vectors(ctx context.Context, name string, embedder domain.Embedder, fingerprint string, texts []string) ([][]float32, string, error) {
	entry := cacheKey(name, embedder.Name())
	if x.cache != nil {
		cached, ok, err := x.cache.Load(entry, fingerprint)
		if err != nil {
			x.logger.WarnContext(ctx, "vector cache read failed", "model", name, "error", err)
		}
		if ok {
			if usable(cached, texts, embedder) {
				return cached, "cache", nil
			}
			x.logger.WarnContext(ctx, "ignoring stale vector cache entry", "model", name, "fingerprint", fingerprint)
		}
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, "", fmt.Errorf("encode passages: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, "", errors.New("encode passages: vector count mismatch")
	}
	if x.cache != nil {
		if err := x.cache.Store(entry, fingerprint, vectors); err != nil {
			x.logger.WarnContext(ctx, "vector cache write failed", "model", name, "error", err)
		}
	}
	return vectors, "encoded", nil
}

// Prune drops every space not built for fingerprint and clears its store.
func (x *Index) Prune(ctx context.Context, fingerprint string) int {
	x.mu.Lock()
	var stale []*Space
	for k, sp := range x.spaces {
		if !strings.HasSuffix(k, "|"+fingerprint) {
			stale = append(stale, sp)
			delete(x.spaces, k)
		}
	}
	x.mu.Unlock()
	for _, sp := range stale {
		if sp.Store != nil {
			if err := sp.Store.Clear(ctx); err != nil {
				x.logger.WarnContext(ctx, "clear stale vector store failed", "model", sp.Model, "error", err)
			}
		}
	}
	return len(stale)
}

// Len returns the number of built spaces.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.spaces)
}
