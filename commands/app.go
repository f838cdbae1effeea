package commands

import (
	"context"
	"fmt"

	"github/itish2003/docbot/config"
	"github/itish2003/docbot/services"
)

// app is the service graph built from a Config.
type app struct {
	cfg         *config.Config
	content     *services.ContentStore
	store       services.IndexStore
	pipeline    *services.IngestionPipeline
	cache       *services.IndexCache
	credentials *services.CredentialStore
	rag         services.RAGService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	content := services.NewContentStore(cfg.Paths.Data, cfg.Paths.Webhooks, cfg.Paths.Storage)
	if err := content.EnsureLayout(); err != nil {
		return nil, err
	}

	store, err := newIndexStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	synthesizer, err := newSynthesizer(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	pipeline := services.NewIngestionPipeline(content, store, embedder, cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	cache := services.NewIndexCache(pipeline)
	downloader := services.NewWebhookDownloader(cfg.Webhook.Timeout, cfg.Webhook.MaxBytes)
	rag := services.NewRAGService(content, pipeline, cache, downloader, synthesizer, services.Options{
		TopK:     cfg.Index.TopK,
		MinScore: cfg.Index.MinScore,
	})

	return &app{
		cfg:         cfg,
		content:     content,
		store:       store,
		pipeline:    pipeline,
		cache:       cache,
		credentials: services.NewCredentialStore(cfg.Auth.KeysFile, cfg.Auth.Mode),
		rag:         rag,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func newIndexStore(ctx context.Context, cfg *config.Config) (services.IndexStore, error) {
	switch cfg.Index.Backend {
	case "sqlite":
		return services.NewSQLiteIndexStore(cfg.Paths.Storage)
	case "chroma":
		return services.NewChromaIndexStore(ctx, cfg.Chroma.URL, cfg.Chroma.Collection, cfg.Paths.Storage)
	case "file", "":
		return services.NewFileIndexStore(cfg.Paths.Storage), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

func newEmbedder(cfg *config.Config) (services.Embedder, error) {
	switch cfg.Embedder.Type {
	case "ollama":
		return services.NewOllamaEmbedder(cfg.Embedder.OllamaURL, cfg.Embedder.Model, cfg.Embedder.BatchSize)
	case "hashing", "":
		return services.NewHashingEmbedder(cfg.Embedder.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder.Type)
	}
}

func newSynthesizer(ctx context.Context, cfg *config.Config) (services.Synthesizer, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return services.NewGeminiSynthesizer(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	case "extractive", "":
		return services.NewExtractiveSynthesizer(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
