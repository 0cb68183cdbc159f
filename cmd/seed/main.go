// Command seed builds the Qdrant subsidy collection from the catalog so the
// first request does not pay the index-build latency.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	ai "github.com/fairyhunter13/subsidy-matcher/internal/adapter/ai"
	"github.com/fairyhunter13/subsidy-matcher/internal/adapter/ai/openai"
	"github.com/fairyhunter13/subsidy-matcher/internal/adapter/catalog"
	qdrantcli "github.com/fairyhunter13/subsidy-matcher/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/subsidy-matcher/internal/config"
	"github.com/fairyhunter13/subsidy-matcher/internal/observability"
	"github.com/fairyhunter13/subsidy-matcher/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	if cfg.OpenAIAPIKey == "" {
		slog.Error("OPENAI_API_KEY required to build embeddings")
		os.Exit(1)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		slog.Error("catalog load failed", slog.Any("error", err))
		os.Exit(1)
	}

	aicl := ai.NewEmbedCache(openai.New(cfg), cfg.EmbedCacheSize)
	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	matcher := usecase.NewMatchService(cat, aicl, qcli, cfg.QdrantCollection, cfg.VectorSize, cfg.SearchTopK, cfg.FallbackSuggestCount, usecase.DefaultSynonyms())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := matcher.BuildIndex(ctx); err != nil {
		slog.Error("index build failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("index built", slog.Int("records", cat.Len()), slog.String("collection", cfg.QdrantCollection))
}
