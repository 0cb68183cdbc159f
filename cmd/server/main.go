// Command server starts the subsidy matcher HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	ai "github.com/fairyhunter13/subsidy-matcher/internal/adapter/ai"
	"github.com/fairyhunter13/subsidy-matcher/internal/adapter/ai/openai"
	"github.com/fairyhunter13/subsidy-matcher/internal/adapter/catalog"
	httpserver "github.com/fairyhunter13/subsidy-matcher/internal/adapter/httpserver"
	"github.com/fairyhunter13/subsidy-matcher/internal/adapter/rediscache"
	qdrantcli "github.com/fairyhunter13/subsidy-matcher/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/subsidy-matcher/internal/app"
	"github.com/fairyhunter13/subsidy-matcher/internal/config"
	"github.com/fairyhunter13/subsidy-matcher/internal/domain"
	"github.com/fairyhunter13/subsidy-matcher/internal/observability"
	"github.com/fairyhunter13/subsidy-matcher/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		slog.Error("catalog load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("catalog loaded", slog.Int("records", cat.Len()))

	synonyms, err := usecase.LoadSynonyms(cfg.SynonymsPath)
	if err != nil {
		slog.Error("synonyms load failed", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.OpenAIAPIKey == "" {
		// Recoverable: the keyword filter and template fallback still serve
		// requests without a credential.
		slog.Warn("OPENAI_API_KEY not set; semantic search and generation disabled")
	}
	aicl := ai.NewEmbedCache(openai.New(cfg), cfg.EmbedCacheSize)

	var qcli *qdrantcli.Client
	if cfg.QdrantURL != "" {
		qcli = qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	}

	rcache, err := rediscache.New(cfg.RedisURL, cfg.RecTTL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	if rcache != nil {
		slog.Info("recommendation cache enabled", slog.Duration("ttl", cfg.RecTTL))
	}

	var index domain.VectorIndex
	if qcli != nil {
		index = qcli
	}
	var reccache domain.RecommendationCache
	if rcache != nil {
		reccache = rcache
	}

	matcher := usecase.NewMatchService(cat, aicl, index, cfg.QdrantCollection, cfg.VectorSize, cfg.SearchTopK, cfg.FallbackSuggestCount, synonyms)
	recommender := usecase.NewRecommendService(aicl, reccache, cfg.ChatMaxTokens, cfg.PromptTokenBudget)

	qdrantCheck, redisCheck := app.BuildReadinessChecks(qcli, rcache)
	srv := httpserver.NewServer(cfg, matcher, recommender, qdrantCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
