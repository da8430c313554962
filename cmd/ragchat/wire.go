package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/corpus"
	"github.com/xxxsen/ragchat/internal/embedcache"
	"github.com/xxxsen/ragchat/internal/repo"
	"github.com/xxxsen/ragchat/internal/service"
	"github.com/xxxsen/ragchat/internal/vectorindex"
)

type app struct {
	cfg       *config.Config
	db        *sql.DB
	index     vectorindex.Index
	cacheRepo *repo.EmbeddingCacheRepo
	indexer   *service.IndexService
	chat      *service.ChatService
}

func buildApp(cfg *config.Config) (*app, error) {
	db, err := repo.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	a := &app{cfg: cfg, db: db, cacheRepo: repo.NewEmbeddingCacheRepo(db)}

	embedder, generator, err := a.buildModels()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	index, err := vectorindex.New(cfg.VectorIndex)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init vector index: %w", err)
	}
	a.index = index

	a.indexer = service.NewIndexService(embedder, index, corpus.NewLoader(cfg.Corpus), service.IndexConfig{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.Overlap(),
		BatchSize:    cfg.RAG.EmbedBatchSize,
		Concurrency:  cfg.RAG.EmbedConcurrency,
	})
	a.chat = service.NewChatService(
		service.NewRetriever(embedder, index),
		service.NewSynthesizer(generator, service.SynthesizerConfig{
			PromptBudget:         cfg.RAG.PromptBudget,
			AssistantDescription: cfg.RAG.AssistantDescription,
		}),
		service.ChatConfig{
			IndexName:       cfg.RAG.IndexName,
			TopK:            cfg.RAG.TopK,
			HistoryTurns:    cfg.RAG.HistoryTurns,
			MaxTurns:        cfg.RAG.MaxTurns,
			SessionTTL:      time.Duration(cfg.RAG.SessionTTLMinutes) * time.Minute,
			SessionCapacity: cfg.RAG.SessionCapacity,
			Examples:        cfg.RAG.Examples,
		},
	)
	return a, nil
}

// buildModels stacks, innermost first: provider fallback group, rate limit,
// retry, caches, per-call timeout.
func (a *app) buildModels() (ai.IEmbedder, ai.IGenerator, error) {
	cfg := a.cfg.AI
	var embedders []ai.EmbedderEntry
	for i, pc := range cfg.EmbedProviders {
		p, err := ai.NewProvider(pc.Name, pc.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("init embed provider %s at ai.embed_providers[%d]: %w", pc.Name, i, err)
		}
		embedders = append(embedders, ai.EmbedderEntry{Name: pc.Name, Embedder: ai.NewEmbedder(p, cfg.EmbedModel)})
	}
	var generators []ai.GeneratorEntry
	for i, pc := range cfg.GenerateProviders {
		p, err := ai.NewProvider(pc.Name, pc.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("init generate provider %s at ai.generate_providers[%d]: %w", pc.Name, i, err)
		}
		generators = append(generators, ai.GeneratorEntry{Name: pc.Name, Generator: ai.NewGenerator(p, cfg.ChatModel)})
	}
	embedder, generator := limitAndRetry(ai.NewGroupEmbedder(embedders), ai.NewGroupGenerator(generators), cfg)
	if cfg.DBCache {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.cacheRepo)
	}
	if cfg.CacheSize > 0 {
		embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.CacheSize, time.Duration(cfg.CacheTTLMinutes)*time.Minute)
	}
	manager := ai.NewManager(generator, embedder, ai.ManagerConfig{Timeout: time.Duration(cfg.Timeout) * time.Second})
	logutil.GetLogger(context.Background()).Info("models ready",
		zap.Int("embed_providers", len(embedders)),
		zap.Int("generate_providers", len(generators)),
		zap.String("embed_model", manager.ModelName()),
	)
	return manager, manager, nil
}

// limitAndRetry puts the rate limiter under the retry loop so every attempt
// takes a token.
func limitAndRetry(e ai.IEmbedder, g ai.IGenerator, cfg config.AIConfig) (ai.IEmbedder, ai.IGenerator) {
	limited, generator := ai.WrapRateLimit(e, g, cfg.RatePerSecond, cfg.Burst)
	return ai.WrapRetryEmbedder(limited, ai.RetryConfig{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryDelayMs) * time.Millisecond,
	}), generator
}

func (a *app) Close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			logutil.GetLogger(context.Background()).Error("close vector index failed", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		logutil.GetLogger(context.Background()).Error("close db failed", zap.Error(err))
	}
}
