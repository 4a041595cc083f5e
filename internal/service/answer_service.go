package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"placementqa/internal/aggregate"
	"placementqa/internal/classifier"
	"placementqa/internal/dataset"
	"placementqa/internal/domain"
	"placementqa/internal/embedding"
	"placementqa/internal/index"
	"placementqa/internal/metrics"
	"placementqa/internal/ranker"
)

// Fixed user-facing messages.
const (
	MsgNoData      = "No data is available to answer that question."
	MsgUnavailable = "Sorry, I couldn't answer that question right now."
	MsgEmpty       = "Please ask a question about the college data."
)

// Source tells where an answer came from.
type Source string

const (
	SourceAggregation Source = "aggregation"
	SourceSemantic    Source = "semantic"
	SourceNotFound    Source = "not_found"
	SourceNoData      Source = "no_data"
	SourceError       Source = "error"
)

// Answer is an answer with its provenance.
type Answer struct {
	Text   string
	Source Source
	Model  string
	Score  float64
}

// Config tunes semantic search.
type Config struct {
	TopK         int
	MinScore     float64
	QueryTimeout time.Duration
}

// AnswerService routes questions to aggregation or semantic search.
type AnswerService struct {
	data    *dataset.Holder
	index   *index.Index
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAnswerService wires the router. logger and m may be nil; zero Config
// fields take the ranker defaults.
func NewAnswerService(data *dataset.Holder, idx *index.Index, cfg Config, logger *slog.Logger, m *metrics.Metrics) *AnswerService {
	if cfg.TopK <= 0 {
		cfg.TopK = ranker.DefaultTopK
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = ranker.DefaultMinScore
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &AnswerService{data: data, index: idx, cfg: cfg, logger: logger, metrics: m}
}

// Answer returns the answer text for question.
func (s *AnswerService) Answer(ctx context.Context, question, model string) string {
	return s.Ask(ctx, question, model).Text
}

// Ask answers question, trying aggregation first and semantic search
// otherwise. It never returns an internal error to the caller.
func (s *AnswerService) Ask(ctx context.Context, question, model string) Answer {
	ans := s.ask(ctx, question, model)
	s.metrics.Answers.WithLabelValues(string(ans.Source)).Inc()
	return ans
}

func (s *AnswerService) ask(ctx context.Context, question, model string) Answer {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{Text: MsgEmpty, Source: SourceNotFound}
	}
	ds := s.data.Current()

	intent := classifier.Classify(question)
	if intent.IsAggregation() {
		text, err := aggregate.Resolve(ds, intent)
		switch {
		case err == nil:
			s.logger.DebugContext(ctx, "answered by aggregation", "op", intent.Op.String(), "column", intent.Column)
			return Answer{Text: text, Source: SourceAggregation}
		case errors.Is(err, dataset.ErrEmptyDataset):
			return Answer{Text: MsgNoData, Source: SourceNoData}
		default:
			s.logger.DebugContext(ctx, "aggregation fell back to semantic search", "error", err)
		}
	}
	return s.semantic(ctx, question, model, ds)
}

func (s *AnswerService) semantic(ctx context.Context, question, model string, ds *dataset.Dataset) Answer {
	if model == "" {
		model = embedding.ModelFast
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	start := time.Now()

	sp, err := s.index.Space(ctx, model, ds)
	if err != nil {
		s.logger.ErrorContext(ctx, "semantic search unavailable", "model", model, "error", err)
		return Answer{Text: MsgUnavailable, Source: SourceError, Model: model}
	}
	results, err := sp.Search(ctx, question, s.cfg.TopK)
	s.metrics.SemanticSearch.WithLabelValues(sp.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.ErrorContext(ctx, "semantic search failed", "model", sp.Model, "error", err)
		return Answer{Text: MsgUnavailable, Source: SourceError, Model: sp.Model}
	}

	hits := make([]ranker.Hit, len(results))
	for i, r := range results {
		hits[i] = ranker.Hit{Index: r.Passage.Index, Score: r.Score}
	}
	text, ok := ranker.Compose(hits, sp.Texts(), s.cfg.MinScore)
	if !ok {
		return Answer{Text: text, Source: SourceNotFound, Model: sp.Model}
	}
	return Answer{Text: text, Source: SourceSemantic, Model: sp.Model, Score: hits[0].Score}
}

// Reload swaps in a new dataset snapshot and drops vector spaces of the old one.
func (s *AnswerService) Reload(ctx context.Context, load dataset.Loader) error {
	ds, err := s.data.Reload(ctx, load)
	if err != nil {
		return err
	}
	s.DropStale(ctx, ds)
	return nil
}

// DropStale drops vector spaces that do not belong to ds.
func (s *AnswerService) DropStale(ctx context.Context, ds *dataset.Dataset) {
	if n := s.index.Prune(ctx, ds.Fingerprint()); n > 0 {
		s.logger.InfoContext(ctx, "dropped stale passage indexes", "count", n)
	}
}

// Dataset returns the active snapshot.
func (s *AnswerService) Dataset() *dataset.Dataset { return s.data.Current() }

var _ domain.Answerer = (*AnswerService)(nil)
