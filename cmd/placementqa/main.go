package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"placementqa/internal/config"
	"placementqa/internal/dataset"
	"placementqa/internal/domain"
	"placementqa/internal/embedding"
	"placementqa/internal/embedding/openai"
	"placementqa/internal/embedding/tfidf"
	"placementqa/internal/httpapi"
	"placementqa/internal/index"
	"placementqa/internal/logging"
	"placementqa/internal/metrics"
	"placementqa/internal/service"
	"placementqa/internal/summarizer"
	"placementqa/internal/tui"
	"placementqa/internal/vectorcache"
	"placementqa/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, model, addr string
	var serve, watch bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/placementqa/config.yaml if not provided)")
	flag.StringVar(&model, "model", embedding.ModelFast, "Embedding model for semantic questions (fast or accurate)")
	flag.BoolVar(&serve, "serve", false, "Serve the HTTP API instead of answering on the terminal")
	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")
	flag.BoolVar(&watch, "watch", false, "Reload the dataset when its file changes")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "Usage: placementqa [flags] [question ...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if watch {
		cfg.Dataset.Watch = true
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	interactive := !serve && question == ""

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if interactive {
		var closeLog func()
		logger, closeLog = tuiLogger(cfg.Log, logDir())
		defer closeLog()
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	load := dataset.SourceLoader(cfg.Dataset.Path, s3Config(cfg.Dataset.S3))
	ds, err := load(ctx)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	logger.Info("dataset loaded", "source", ds.Source(), "rows", ds.Count(), "fingerprint", ds.Fingerprint())
	holder := dataset.NewHolder(ds)

	// Assemble components
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	registry, err := embedding.NewRegistry(modelFactories(cfg.Embedding.Models),
		embedding.WithLoadTimeout(cfg.Embedding.LoadTimeout()),
		embedding.WithLogger(logger),
		embedding.WithLoadHook(m.ObserveModelLoad),
	)
	if err != nil {
		log.Fatalf("embedding registry init failed: %v", err)
	}

	stores, err := vectorstore.NewFactory(storeConfig(cfg.VectorStore))
	if err != nil {
		log.Fatalf("vector store init failed: %v", err)
	}

	opts := []index.Option{index.WithLogger(logger), index.WithMetrics(m)}
	if cfg.VectorCache.Enabled {
		cache, err := vectorcache.New(cfg.VectorCache.Dir, cfg.VectorCache.Codec)
		if err != nil {
			logger.Warn("vector cache disabled", "dir", cfg.VectorCache.Dir, "error", err)
		} else {
			opts = append(opts, index.WithCache(cache))
		}
	}
	idx := index.New(registry, stores, opts...)

	svc := service.NewAnswerService(holder, idx, service.Config{
		TopK:         cfg.Ranker.TopK,
		MinScore:     cfg.Ranker.MinScore,
		QueryTimeout: cfg.Embedding.QueryTimeout(),
	}, logger, m)

	startWatcher := func(hooks ...func(*dataset.Dataset)) func() {
		if !cfg.Dataset.Watch {
			return func() {}
		}
		if dataset.IsRemote(cfg.Dataset.Path) {
			logger.Warn("dataset watch ignored for remote sources", "source", cfg.Dataset.Path)
			return func() {}
		}
		w, err := dataset.NewWatcher(cfg.Dataset.Path, holder, load, logger)
		if err != nil {
			log.Fatalf("dataset watcher init failed: %v", err)
		}
		w.OnReload = func(ds *dataset.Dataset) {
			svc.DropStale(ctx, ds)
			for _, hook := range hooks {
				hook(ds)
			}
		}
		go w.Run(ctx)
		return func() { _ = w.Close() }
	}

	switch {
	case serve:
		defer startWatcher()()
		if err := httpapi.NewServer(svc, reg, logger, cfg.Server.Addr).Start(ctx); err != nil {
			log.Fatalf("http server: %v", err)
		}
	case question != "":
		fmt.Println(svc.Answer(ctx, question, model))
	default:
		names := modelOrder(registry.Names(), registry.Resolve(model))
		p := tea.NewProgram(tui.New(svc, summarizer.Overview(svc.Dataset(), 3), names...), tea.WithContext(ctx))
		defer startWatcher(func(ds *dataset.Dataset) {
			p.Send(tui.SummaryMsg(summarizer.Overview(ds, 3)))
		})()
		if _, err := p.Run(); err != nil {
			log.Fatal(err)
		}
	}
}

// tuiLogger writes logs to a file under dir while the TUI owns the terminal,
// dropping them when the file cannot be opened.
func tuiLogger(cfg config.LogConfig, dir string) (*slog.Logger, func()) {
	logger, f, err := logging.NewFile(filepath.Join(dir, "tui.log"), cfg.Level, cfg.Format)
	if err != nil {
		return logging.Discard(), func() {}
	}
	return logger, func() { _ = f.Close() }
}

func logDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "placementqa")
	}
	return filepath.Join(dir, "placementqa")
}

func modelFactories(models map[string]config.ModelConfig) map[string]embedding.Factory {
	out := make(map[string]embedding.Factory, len(models))
	for name, mc := range models {
		switch mc.Type {
		case "tfidf":
			out[name] = func(context.Context) (domain.Model, error) {
				return tfidf.NewModel(), nil
			}
		case "openai":
			oc := mc.OpenAI
			out[name] = func(context.Context) (domain.Model, error) {
				client, err := openai.NewClient(openai.Config{
					BaseURL:           oc.BaseURL,
					APIKeyEnv:         oc.APIKeyEnv,
					Model:             oc.Model,
					Timeout:           time.Duration(oc.TimeoutSecs) * time.Second,
					BatchSize:         oc.BatchSize,
					Concurrency:       oc.Concurrency,
					RequestsPerSecond: oc.RequestsPerSecond,
				})
				if err != nil {
					return nil, err
				}
				return client, nil
			}
		}
	}
	return out
}

func storeConfig(c config.VectorStoreConfig) vectorstore.Config {
	sc := vectorstore.Config{Type: c.Type}
	if c.Qdrant != nil {
		sc.QdrantURL = c.Qdrant.URL
		sc.QdrantAPIKey = c.Qdrant.APIKey
		sc.QdrantCollection = c.Qdrant.Collection
		sc.QdrantTimeout = time.Duration(c.Qdrant.TimeoutSecs) * time.Second
	}
	return sc
}

func s3Config(c *config.S3Config) dataset.S3Config {
	if c == nil {
		return dataset.S3Config{}
	}
	return dataset.S3Config{
		Endpoint:        c.Endpoint,
		AccessKeyID:     os.Getenv(c.AccessKeyEnv),
		SecretAccessKey: os.Getenv(c.SecretKeyEnv),
		Region:          c.Region,
		UseSSL:          c.UseSSL,
	}
}

// modelOrder puts first at the front of names.
func modelOrder(names []string, first string) []string {
	out := []string{first}
	for _, n := range names {
		if n != first {
			out = append(out, n)
		}
	}
	return out
}
