package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"placementqa/internal/domain"
	"placementqa/internal/vectorstore/memory"
	"placementqa/internal/vectorstore/qdrant"
)

// Config selects and configures the vector store implementation.
type Config struct {
	Type             string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	QdrantTimeout    time.Duration
}

// Factory creates a store for one passage space, identified by the model
// name and dataset fingerprint it holds vectors for.
type Factory func(ctx context.Context, model, fingerprint string) (domain.VectorStore, error)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// NewFactory returns a Factory for cfg.Type ("memory" or "qdrant").
func NewFactory(cfg Config) (Factory, error) {
	switch cfg.Type {
	case "memory", "":
		return func(context.Context, string, string) (domain.VectorStore, error) {
			return memory.NewStorage(), nil
		}, nil
	case "qdrant":
		if cfg.QdrantURL == "" {
			return nil, fmt.Errorf("qdrant url missing")
		}
		prefix := cfg.QdrantCollection
		if prefix == "" {
			prefix = "placement_passages"
		}
		return func(_ context.Context, model, fingerprint string) (domain.VectorStore, error) {
			if len(fingerprint) > 12 {
				fingerprint = fingerprint[:12]
			}
			name := strings.Join([]string{prefix, unsafeName.ReplaceAllString(model, "_"), fingerprint}, "_")
			return qdrant.NewStorage(qdrant.Config{
				URL:        strings.TrimRight(cfg.QdrantURL, "/"),
				APIKey:     cfg.QdrantAPIKey,
				Collection: name,
				Timeout:    cfg.QdrantTimeout,
			}), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
}
