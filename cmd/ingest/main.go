// Command ingest runs the catalog ingestion worker. Parts arrive from the
// NATS catalog bus, from supplier feed polling, or from a one-shot load of
// JSON catalog files, and are embedded and written to the vector index and
// the part graph.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kelleherhvac/partfinder/engine/catalog"
	"github.com/kelleherhvac/partfinder/engine/feed"
	"github.com/kelleherhvac/partfinder/engine/ingest"
	"github.com/kelleherhvac/partfinder/engine/parts"
	"github.com/kelleherhvac/partfinder/engine/semantic"
	"github.com/kelleherhvac/partfinder/pkg/metrics"
	"github.com/kelleherhvac/partfinder/pkg/natsutil"
	"github.com/kelleherhvac/partfinder/pkg/ollama"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type config struct {
	NATSURL       string
	QdrantAddr    string
	QdrantAPIKey  string
	Collection    string
	OllamaURL     string
	EmbedModel    string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	CatalogDir    string
	FeedURL       string
	FeedSupplier  string
	FeedInterval  time.Duration
	MetricsAddr   string
}

func loadConfig() config {
	interval, err := time.ParseDuration(envOr("FEED_INTERVAL", "15m"))
	if err != nil {
		interval = 15 * time.Minute
	}
	return config{
		NATSURL:       os.Getenv("NATS_URL"),
		QdrantAddr:    envOr("QDRANT_ADDR", "localhost:6334"),
		QdrantAPIKey:  os.Getenv("QDRANT_API_KEY"),
		Collection:    envOr("QDRANT_COLLECTION", "hvac-parts"),
		OllamaURL:     envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:    envOr("EMBED_MODEL", ollama.DefaultModel),
		Neo4jURI:      os.Getenv("NEO4J_URI"),
		Neo4jUser:     envOr("NEO4J_USER", "neo4j"),
		Neo4jPassword: os.Getenv("NEO4J_PASSWORD"),
		CatalogDir:    os.Getenv("CATALOG_DIR"),
		FeedURL:       os.Getenv("FEED_URL"),
		FeedSupplier:  envOr("FEED_SUPPLIER", "default"),
		FeedInterval:  interval,
		MetricsAddr:   envOr("METRICS_ADDR", ":9091"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("ingest worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	if cfg.QdrantAPIKey == "" {
		return errors.New("QDRANT_API_KEY is not set")
	}

	store, err := semantic.New(cfg.QdrantAddr, cfg.Collection, cfg.QdrantAPIKey)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel)
	dims, err := embedder.Warmup(ctx)
	if err != nil {
		return err
	}
	if err := store.EnsureCollection(ctx, dims); err != nil {
		return err
	}
	logger.Info("vector index ready", "collection", cfg.Collection, "dims", dims)

	var graph ingest.GraphWriter
	if cfg.Neo4jURI != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
		if err != nil {
			logger.Warn("neo4j unavailable, graph mirroring disabled", "error", err)
		} else {
			defer driver.Close(ctx)
			graph = catalog.New(driver)
		}
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("partfinder-ingest"))
		if err != nil {
			return err
		}
		defer nc.Drain()
	}

	var dlq ingest.DLQFunc
	if nc != nil {
		dlq = func(ctx context.Context, dl ingest.DeadLetter) error {
			return natsutil.Publish(ctx, nc, ingest.SubjectDLQ, dl)
		}
	}

	pipeline := ingest.New(embedder, store, graph, dlq, logger)

	reg := metrics.New()
	ingested := reg.Counter("partfinder_ingest_parts_total", "Parts successfully ingested.")
	failed := reg.Counter("partfinder_ingest_failures_total", "Parts that failed ingestion.")
	go serveMetrics(cfg.MetricsAddr, reg, logger)

	handle := func(ctx context.Context, p parts.Part) {
		if err := pipeline.Ingest(ctx, p); err != nil {
			failed.Inc()
			return
		}
		ingested.Inc()
	}

	if nc != nil {
		sub, err := natsutil.QueueSubscribe(nc, ingest.SubjectParts, ingest.QueueGroup, handle)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
		logger.Info("consuming catalog bus", "subject", ingest.SubjectParts, "queue", ingest.QueueGroup)
	}

	if cfg.CatalogDir != "" {
		n, err := loadCatalogDir(ctx, cfg.CatalogDir, pipeline)
		if err != nil {
			return err
		}
		ingested.Add(int64(n))
		logger.Info("catalog files loaded", "dir", cfg.CatalogDir, "stored", n)
	}

	if cfg.FeedURL != "" {
		client := feed.NewClient(cfg.FeedURL, cfg.FeedSupplier, feed.DefaultClientOpts())
		publish := func(ctx context.Context, p parts.Part) error {
			if nc != nil {
				return natsutil.Publish(ctx, nc, ingest.SubjectParts, p)
			}
			return pipeline.Ingest(ctx, p)
		}
		poller := feed.NewPoller(client, publish, cfg.FeedInterval, logger)
		go poller.Run(ctx)
		logger.Info("polling supplier feed", "supplier", cfg.FeedSupplier, "interval", cfg.FeedInterval)
	}

	if nc == nil && cfg.FeedURL == "" {
		// One-shot file load with no bus or feed configured: done.
		return nil
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// loadCatalogDir ingests every *.json file in dir. Each file holds an array
// of parts.
func loadCatalogDir(ctx context.Context, dir string, pipeline *ingest.Pipeline) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}

	total := 0
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return total, err
		}
		var batch []parts.Part
		if err := json.Unmarshal(data, &batch); err != nil {
			slog.Warn("skipping malformed catalog file", "file", file, "error", err)
			continue
		}
		total += pipeline.IngestBatch(ctx, batch)
	}
	return total, nil
}

func serveMetrics(addr string, reg *metrics.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", reg.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}
