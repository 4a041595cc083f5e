package index

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placementqa/internal/dataset"
	"placementqa/internal/domain"
	"placementqa/internal/embedding"
	"placementqa/internal/embedding/tfidf"
	"placementqa/internal/metrics"
	"placementqa/internal/vectorcache"
	"placementqa/internal/vectorstore"
)

// countingModel wraps the TF-IDF model and counts passage encodings.
type countingModel struct {
	inner   *tfidf.Model
	batches *atomic.Int32
}

func (m countingModel) Name() string { return "counting" }

func (m countingModel) Prepare(ctx context.Context, corpus []string) (domain.Embedder, error) {
	e, err := m.inner.Prepare(ctx, corpus)
	if err != nil {
		return nil, err
	}
	return countingEmbedder{Embedder: e, batches: m.batches}, nil
}

type countingEmbedder struct {
	domain.Embedder
	batches *atomic.Int32
}

func (e countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	return e.Embedder.EmbedBatch(ctx, texts)
}

func records() []domain.Record {
	return []domain.Record{
		{Name: "Alice", Age: 22, Degree: "B.Tech", Stream: "Computer Science", CollegeName: "MIT", PlacementStatus: "Placed", GPA: 3.8, Salary: 70000, YearsOfExperience: 1},
		{Name: "Bob", Age: 24, Degree: "B.Sc", Stream: "Physics", CollegeName: "Stanford", PlacementStatus: "Not Placed", GPA: 3.1},
		{Name: "Carol", Age: 23, Degree: "MBA", Stream: "Finance", CollegeName: "Harvard", PlacementStatus: "Placed", GPA: 3.5, Salary: 90000, YearsOfExperience: 2},
	}
}

func newIndex(t *testing.T, batches *atomic.Int32, opts ...Option) *Index {
	t.Helper()
	reg, err := embedding.NewRegistry(map[string]embedding.Factory{
		embedding.ModelFast: func(context.Context) (domain.Model, error) {
			return countingModel{inner: tfidf.NewModel(), batches: batches}, nil
		},
	})
	require.NoError(t, err)
	stores, err := vectorstore.NewFactory(vectorstore.Config{Type: "memory"})
	require.NoError(t, err)
	return New(reg, stores, opts...)
}

func TestSpace_BuiltOncePerSnapshot(t *testing.T) {
	var batches atomic.Int32
	x := newIndex(t, &batches)
	ds := dataset.New("test", records())

	var wg sync.WaitGroup
	spaces := make([]*Space, 8)
	for i := range spaces {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sp, err := x.Space(context.Background(), "fast", ds)
			assert.NoError(t, err)
			spaces[i] = sp
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), batches.Load())
	for _, sp := range spaces {
		assert.Same(t, spaces[0], sp)
	}

	// unknown model names share the fast space
	sp, err := x.Space(context.Background(), "bogus", ds)
	require.NoError(t, err)
	assert.Same(t, spaces[0], sp)
	assert.Equal(t, 1, x.Len())
}

func TestSpace_SearchFindsPassage(t *testing.T) {
	var batches atomic.Int32
	x := newIndex(t, &batches)
	sp, err := x.Space(context.Background(), "fast", dataset.New("test", records()))
	require.NoError(t, err)

	res, err := sp.Search(context.Background(), "physics stanford", 3)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, 1, res[0].Passage.Index)
	assert.Contains(t, res[0].Passage.Text, "Bob")
	assert.Len(t, sp.Texts(), 3)
}

func TestSpace_EmptyDataset(t *testing.T) {
	var batches atomic.Int32
	x := newIndex(t, &batches)
	sp, err := x.Space(context.Background(), "fast", dataset.New("empty", nil))
	require.NoError(t, err)

	res, err := sp.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Zero(t, batches.Load())
}

func TestSpace_UsesVectorCacheAcrossIndexes(t *testing.T) {
	cache, err := vectorcache.New(t.TempDir(), vectorcache.CodecZstd)
	require.NoError(t, err)
	ds := dataset.New("test", records())

	var first atomic.Int32
	_, err = newIndex(t, &first, WithCache(cache)).Space(context.Background(), "fast", ds)
	require.NoError(t, err)
	assert.Equal(t, int32(1), first.Load())

	var second atomic.Int32
	sp, err := newIndex(t, &second, WithCache(cache)).Space(context.Background(), "fast", ds)
	require.NoError(t, err)
	assert.Zero(t, second.Load())

	res, err := sp.Search(context.Background(), "finance harvard", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 2, res[0].Passage.Index)
}

func TestPrune_DropsStaleSnapshots(t *testing.T) {
	var batches atomic.Int32
	x := newIndex(t, &batches)
	old := dataset.New("old", records())
	next := dataset.New("new", records()[:2])

	_, err := x.Space(context.Background(), "fast", old)
	require.NoError(t, err)
	_, err = x.Space(context.Background(), "fast", next)
	require.NoError(t, err)
	require.Equal(t, 2, x.Len())

	assert.Equal(t, 1, x.Prune(context.Background(), next.Fingerprint()))
	assert.Equal(t, 1, x.Len())
}

func TestSpace_ReencodesStaleCacheEntry(t *testing.T) {
	ctx := context.Background()
	cache, err := vectorcache.New(t.TempDir(), vectorcache.CodecZstd)
	require.NoError(t, err)
	ds := dataset.New("test", records())
	stale := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	require.NoError(t, cache.Store(cacheKey("fast", "tfidf"), ds.Fingerprint(), stale))

	m := metrics.New(prometheus.NewRegistry())
	var batches atomic.Int32
	sp, err := newIndex(t, &batches, WithCache(cache), WithMetrics(m)).Space(ctx, "fast", ds)
	require.NoError(t, err)
	assert.Equal(t, int32(1), batches.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexBuilds.WithLabelValues("fast", "encoded")))
	assert.Zero(t, testutil.ToFloat64(m.IndexBuilds.WithLabelValues("fast", "cache")))

	res, err := sp.Search(ctx, "physics stanford", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Passage.Index)

	fresh, ok, err := cache.Load(cacheKey("fast", "tfidf"), ds.Fingerprint())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sp.Embedder.Dimension(), len(fresh[0]))
}

func TestUsable(t *testing.T) {
	e, err := tfidf.NewModel().Prepare(context.Background(), []string{"alpha beta", "gamma"})
	require.NoError(t, err)
	texts := []string{"alpha beta", "gamma"}
	dim := e.Dimension()

	assert.True(t, usable([][]float32{make([]float32, dim), make([]float32, dim)}, texts, e))
	assert.False(t, usable([][]float32{make([]float32, dim)}, texts, e), "row count")
	assert.False(t, usable([][]float32{make([]float32, dim+1), make([]float32, dim+1)}, texts, e), "dimension")
	assert.False(t, usable([][]float32{make([]float32, dim), make([]float32, dim-1)}, texts, e), "ragged")
	assert.False(t, usable([][]float32{{}, {}}, texts, e), "empty vectors")
	assert.NotEqual(t, "fast.tfidf", cacheKey("fast", "tfidf"))
}
