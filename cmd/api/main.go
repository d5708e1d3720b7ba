// Command api serves the part finder HTTP API: free-text part matching
// backed by Qdrant and Ollama, plus replacement lookups from Neo4j.
//
// Initialization runs once at startup. If it fails (missing QDRANT_API_KEY,
// unreachable Qdrant, absent collection, cold Ollama), the server still
// comes up in a degraded state and answers every match request with a
// fixed 500, so the failure is visible without crash-looping.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kelleherhvac/partfinder/engine/catalog"
	"github.com/kelleherhvac/partfinder/engine/match"
	"github.com/kelleherhvac/partfinder/engine/semantic"
	"github.com/kelleherhvac/partfinder/pkg/metrics"
	"github.com/kelleherhvac/partfinder/pkg/mid"
	"github.com/kelleherhvac/partfinder/pkg/ollama"
	"github.com/kelleherhvac/partfinder/pkg/resilience"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const serviceName = "partfinder-api"

type config struct {
	Addr            string
	QdrantAddr      string
	QdrantAPIKey    string
	Collection      string
	OllamaURL       string
	EmbedModel      string
	Neo4jURI        string
	Neo4jUser       string
	Neo4jPassword   string
	CORSOrigin      string
	RateLimit       float64
	ShutdownTimeout time.Duration
}

func loadConfig() config {
	rateLimit, _ := strconv.ParseFloat(envOr("RATE_LIMIT_RPS", "0"), 64)
	return config{
		Addr:            envOr("LISTEN_ADDR", ":8080"),
		QdrantAddr:      envOr("QDRANT_ADDR", "localhost:6334"),
		QdrantAPIKey:    os.Getenv("QDRANT_API_KEY"),
		Collection:      envOr("QDRANT_COLLECTION", "hvac-parts"),
		OllamaURL:       envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:      envOr("EMBED_MODEL", ollama.DefaultModel),
		Neo4jURI:        os.Getenv("NEO4J_URI"),
		Neo4jUser:       envOr("NEO4J_USER", "neo4j"),
		Neo4jPassword:   os.Getenv("NEO4J_PASSWORD"),
		CORSOrigin:      envOr("CORS_ORIGIN", "*"),
		RateLimit:       rateLimit,
		ShutdownTimeout: 10 * time.Second,
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

	svc, store, initErr := initService(ctx, cfg, logger)
	if initErr != nil {
		logger.Error("initialization failed, serving degraded", "error", initErr)
	} else {
		defer store.Close()
	}

	var graph graphReader
	if cfg.Neo4jURI != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
		if err != nil {
			logger.Warn("neo4j unavailable, replacement lookups disabled", "error", err)
		} else {
			defer driver.Close(ctx)
			graph = catalog.New(driver)
		}
	}

	a := newApp(svc, graph, initErr, logger, metrics.New())

	middlewares := []mid.Middleware{
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
	}
	if cfg.RateLimit > 0 {
		limiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.RateLimit, Burst: int(cfg.RateLimit) * 2})
		middlewares = append(middlewares, mid.RateLimit(limiter))
	}
	middlewares = append(middlewares, mid.OTel(serviceName))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mid.Chain(a.routes(), middlewares...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.Addr, "degraded", initErr != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
}

// initService wires the matching service. Any failure here puts the
// process into the degraded state; nothing retries at runtime.
func initService(ctx context.Context, cfg config, logger *slog.Logger) (*match.Service, *semantic.VectorStore, error) {
	if cfg.QdrantAPIKey == "" {
		return nil, nil, errors.New("QDRANT_API_KEY is not set")
	}

	store, err := semantic.New(cfg.QdrantAddr, cfg.Collection, cfg.QdrantAPIKey)
	if err != nil {
		return nil, nil, err
	}

	exists, err := store.Exists(ctx)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if !exists {
		store.Close()
		return nil, nil, errors.New("collection " + cfg.Collection + " does not exist, run the ingest worker first")
	}

	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel)
	dims, err := embedder.Warmup(ctx)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Info("embedding model ready", "model", embedder.Model(), "dims", dims)

	return match.New(embedder, store, match.DefaultOptions(), logger), store, nil
}
