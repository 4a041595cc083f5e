package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placementqa/internal/dataset"
	"placementqa/internal/domain"
	"placementqa/internal/embedding"
	"placementqa/internal/embedding/tfidf"
	"placementqa/internal/index"
	"placementqa/internal/metrics"
	"placementqa/internal/ranker"
	"placementqa/internal/vectorstore"
)

func records() []domain.Record {
	return []domain.Record{
		{Name: "Alice", Age: 22, Degree: "B.Tech", Stream: "Computer Science", CollegeName: "MIT", PlacementStatus: "Placed", GPA: 3.8, Salary: 70000, YearsOfExperience: 1},
		{Name: "Bob", Age: 24, Degree: "B.Sc", Stream: "Physics", CollegeName: "Stanford", PlacementStatus: "Not Placed", GPA: 3.1},
		{Name: "Carol", Age: 23, Degree: "MBA", Stream: "Finance", CollegeName: "Harvard", PlacementStatus: "Placed", GPA: 3.5, Salary: 90000, YearsOfExperience: 2},
	}
}

func newService(t *testing.T, ds *dataset.Dataset, m *metrics.Metrics) (*AnswerService, *index.Index) {
	t.Helper()
	reg, err := embedding.NewRegistry(map[string]embedding.Factory{
		embedding.ModelFast: func(context.Context) (domain.Model, error) { return tfidf.NewModel(), nil },
		embedding.ModelAccurate: func(context.Context) (domain.Model, error) {
			return nil, errors.New("backend down")
		},
	})
	require.NoError(t, err)
	stores, err := vectorstore.NewFactory(vectorstore.Config{Type: "memory"})
	require.NoError(t, err)
	idx := index.New(reg, stores)
	svc := NewAnswerService(dataset.NewHolder(ds), idx, Config{TopK: 3, MinScore: ranker.DefaultMinScore}, nil, m)
	return svc, idx
}

func TestAsk_AggregationIgnoresModel(t *testing.T) {
	svc, _ := newService(t, dataset.New("test", records()), nil)
	ctx := context.Background()

	want := "The highest salary is 90000, belonging to Carol, who studied MBA in Finance at Harvard."
	for _, model := range []string{"fast", "accurate", "unknown", ""} {
		ans := svc.Ask(ctx, "What is the highest salary?", model)
		assert.Equal(t, want, ans.Text, model)
		assert.Equal(t, SourceAggregation, ans.Source, model)
	}
}

func TestAsk_PlacementCount(t *testing.T) {
	svc, _ := newService(t, dataset.New("test", records()), nil)
	got := svc.Answer(context.Background(), "How many students were placed?", "fast")
	assert.Equal(t, "2 out of 3 students were placed (66.7%).", got)
}

func TestAsk_CountSurvivesBrokenModel(t *testing.T) {
	svc, _ := newService(t, dataset.New("test", records()), nil)
	ctx := context.Background()

	assert.Equal(t, "2 out of 3 students were placed (66.7%).",
		svc.Answer(ctx, "How many students got placed?", "accurate"))

	ans := svc.Ask(ctx, "Tell me about the physics student at Stanford", "accurate")
	assert.Equal(t, MsgUnavailable, ans.Text)
	assert.Equal(t, SourceError, ans.Source)
}

func TestAsk_SemanticSearch(t *testing.T) {
	svc, _ := newService(t, dataset.New("test", records()), nil)
	ans := svc.Ask(context.Background(), "Tell me about the physics student at Stanford", "fast")

	require.Equal(t, SourceSemantic, ans.Source)
	assert.Equal(t, embedding.ModelFast, ans.Model)
	assert.True(t, strings.HasPrefix(ans.Text, "Bob is a 24-year-old student pursuing a B.Sc in Physics at Stanford."), ans.Text)
	assert.GreaterOrEqual(t, ans.Score, ranker.DefaultMinScore)
	assert.Len(t, strings.Split(ans.Text, "\n\n"), 3)
}

func TestAsk_BelowThresholdIsNotFound(t *testing.T) {
	svc, _ := newService(t, dataset.New("test", records()), nil)
	ans := svc.Ask(context.Background(), "What is the weather like on Mars?", "fast")
	assert.Equal(t, ranker.NotFound, ans.Text)
	assert.Equal(t, SourceNotFound, ans.Source)
}

func TestAsk_TopKClampedToPassages(t *testing.T) {
	svc, _ := newService(t, dataset.New("small", records()[:2]), nil)
	ans := svc.Ask(context.Background(), "Tell me about computer science at MIT", "fast")
	require.Equal(t, SourceSemantic, ans.Source)
	parts := strings.Split(ans.Text, "\n\n")
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "Alice"))
}

func TestAsk_EmptyQuestionAndDataset(t *testing.T) {
	svc, _ := newService(t, dataset.New("empty", nil), nil)
	ctx := context.Background()

	assert.Equal(t, MsgEmpty, svc.Answer(ctx, "   ", "fast"))
	assert.Equal(t, MsgNoData, svc.Answer(ctx, "How many students were placed?", "fast"))
	assert.Equal(t, "There are 0 students in the dataset.", svc.Answer(ctx, "How many students are there?", "fast"))
	assert.Equal(t, ranker.NotFound, svc.Answer(ctx, "Tell me about Stanford", "fast"))
}

func TestReload_SwapsSnapshotAndDropsStaleSpaces(t *testing.T) {
	svc, idx := newService(t, dataset.New("old", records()), nil)
	ctx := context.Background()

	svc.Answer(ctx, "Tell me about the physics student at Stanford", "fast")
	require.Equal(t, 1, idx.Len())

	err := svc.Reload(ctx, func(context.Context) (*dataset.Dataset, error) {
		return dataset.New("new", records()[:1]), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 1, svc.Dataset().Count())
	assert.Equal(t, "1 out of 1 students were placed (100.0%).", svc.Answer(ctx, "How many were placed?", "fast"))

	err = svc.Reload(ctx, func(context.Context) (*dataset.Dataset, error) {
		return nil, errors.New("disk gone")
	})
	require.Error(t, err)
	assert.Equal(t, 1, svc.Dataset().Count())
}

func TestAsk_CountsAnswersBySource(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	svc, _ := newService(t, dataset.New("test", records()), m)
	ctx := context.Background()

	svc.Answer(ctx, "What is the average gpa?", "fast")
	svc.Answer(ctx, "Who has the lowest age?", "fast")
	svc.Answer(ctx, "What is the weather like on Mars?", "fast")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Answers.WithLabelValues(string(SourceAggregation))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Answers.WithLabelValues(string(SourceNotFound))))
}

func TestNewAnswerService_ZeroConfigKeepsConfidenceFloor(t *testing.T) {
	reg, err := embedding.NewRegistry(map[string]embedding.Factory{
		embedding.ModelFast: func(context.Context) (domain.Model, error) { return tfidf.NewModel(), nil },
	})
	require.NoError(t, err)
	stores, err := vectorstore.NewFactory(vectorstore.Config{Type: "memory"})
	require.NoError(t, err)
	svc := NewAnswerService(dataset.NewHolder(dataset.New("test", records())), index.New(reg, stores), Config{}, nil, nil)

	assert.Equal(t, ranker.DefaultMinScore, svc.cfg.MinScore)
	assert.Equal(t, ranker.DefaultTopK, svc.cfg.TopK)
	ans := svc.Ask(context.Background(), "What is the weather like on Mars?", "fast")
	assert.Equal(t, ranker.NotFound, ans.Text)
	assert.Equal(t, SourceNotFound, ans.Source)
}
