// Package httpapi serves the answer engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"placementqa/internal/dataset"
	"placementqa/internal/service"
	"placementqa/internal/summarizer"
)

// Engine is the part of the answer service the API needs.
type Engine interface {
	Ask(ctx context.Context, question, model string) service.Answer
	Dataset() *dataset.Dataset
}

// Server is the HTTP server for the question API.
type Server struct {
	engine   Engine
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	addr     string
}

// NewServer creates a new HTTP server. gatherer backs /metrics.
func NewServer(engine Engine, gatherer prometheus.Gatherer, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{engine: engine, gatherer: gatherer, logger: logger, addr: addr}
}

type askRequest struct {
	Question string `json:"question"`
	Model    string `json:"model"`
}

type askResponse struct {
	Answer string `json:"answer"`
	Source string `json:"source"`
	Model  string `json:"model,omitempty"`
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s.loggingMiddleware(mux)
}

// Start runs the HTTP server until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}
	s.logger.Info("http server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	ans := s.engine.Ask(r.Context(), req.Question, req.Model)
	writeJSON(w, http.StatusOK, askResponse{Answer: ans.Text, Source: string(ans.Source), Model: ans.Model})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	ds := s.engine.Dataset()
	writeJSON(w, http.StatusOK, map[string]any{
		"source":      ds.Source(),
		"fingerprint": ds.Fingerprint(),
		"rows":        ds.Count(),
		"summary":     summarizer.Overview(ds, 3),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
