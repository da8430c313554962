package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/chunker"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/vectorindex"
)

type DocumentLoader interface {
	Load(ctx context.Context, location string) ([]model.Document, error)
}

type IndexConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	Concurrency  int
}

type IndexService struct {
	embedder ai.IEmbedder
	index    vectorindex.Index
	loader   DocumentLoader
	cfg      IndexConfig
	building sync.Mutex
}

func NewIndexService(embedder ai.IEmbedder, index vectorindex.Index, loader DocumentLoader, cfg IndexConfig) *IndexService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &IndexService{embedder: embedder, index: index, loader: loader, cfg: cfg}
}

// buildState collects per-batch outcomes of one build.
type buildState struct {
	mu     sync.Mutex
	dim    int
	report *model.BuildReport
}

func (b *buildState) fail(chunkID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Failed = append(b.report.Failed, model.FailedChunk{ChunkID: chunkID, Reason: err.Error()})
}

func (b *buildState) written(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Written += n
}

// checkDim pins the build dimension to the first vector seen.
func (b *buildState) checkDim(vec []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dim == 0 {
		b.dim = len(vec)
	}
	if len(vec) != b.dim {
		return fmt.Errorf("dimension %d, build dimension %d: %w", len(vec), b.dim, appErr.ErrDimensionMismatch)
	}
	return nil
}

// Build chunks, embeds and upserts docs into indexName. Failures of single
// documents or chunks are listed in the report; only cancellation aborts.
// Chunk ids are deterministic so a rebuild overwrites in place.
func (s *IndexService) Build(ctx context.Context, docs []model.Document, indexName string) (*model.BuildReport, error) {
	if indexName == "" {
		return nil, fmt.Errorf("index name is required: %w", appErr.ErrInvalid)
	}
	if !s.building.TryLock() {
		return nil, fmt.Errorf("index build already running: %w", appErr.ErrConflict)
	}
	defer s.building.Unlock()

	start := time.Now()
	logger := logutil.GetLogger(ctx).With(zap.String("index", indexName))
	report := &model.BuildReport{IndexName: indexName, Documents: len(docs)}
	state := &buildState{report: report}

	var chunks []model.Chunk
	for _, doc := range docs {
		docChunks, err := chunker.Collect(doc, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
		if err != nil {
			logger.Warn("skip document", zap.String("document_id", doc.ID), zap.String("source", doc.Source), zap.Error(err))
			report.Skipped = append(report.Skipped, model.SkippedDocument{DocumentID: doc.ID, Source: doc.Source, Reason: err.Error()})
			continue
		}
		chunks = append(chunks, docChunks...)
	}
	report.Chunks = len(chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := 0; i < len(chunks); i += s.cfg.BatchSize {
		batch := chunks[i:min(i+s.cfg.BatchSize, len(chunks))]
		g.Go(func() error {
			return s.indexBatch(gctx, indexName, batch, state)
		})
	}
	err := g.Wait()
	report.Duration = time.Since(start)
	if err != nil {
		return report, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return report, ctxErr
	}
	logger.Info("index build finished",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("written", report.Written),
		zap.Int("failed", len(report.Failed)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *IndexService) indexBatch(ctx context.Context, indexName string, batch []model.Chunk, state *buildState) error {
	vectors, err := s.embedBatch(ctx, batch, state)
	if err != nil {
		return err
	}
	records := make([]model.IndexRecord, 0, len(batch))
	for i, c := range batch {
		if vectors[i] == nil {
			continue
		}
		if err := state.checkDim(vectors[i]); err != nil {
			state.fail(c.ID, err)
			continue
		}
		records = append(records, model.IndexRecord{ID: c.ID, Vector: vectors[i], Text: c.Text, Metadata: c.Metadata()})
	}
	if len(records) == 0 {
		return nil
	}
	if err := s.index.Upsert(ctx, indexName, records); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logutil.GetLogger(ctx).Warn("upsert batch failed", zap.String("index", indexName), zap.Int("records", len(records)), zap.Error(err))
		for _, rec := range records {
			state.fail(rec.ID, fmt.Errorf("upsert: %w", err))
		}
		return nil
	}
	state.written(len(records))
	return nil
}

// embedBatch embeds the batch in one call, falling back to one call per chunk
// so a single rejected chunk only fails itself. Failed chunks get a nil vector.
func (s *IndexService) embedBatch(ctx context.Context, batch []model.Chunk, state *buildState) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts, ai.TaskTypeDocument)
	if err == nil && len(vectors) != len(batch) {
		err = fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(batch))
	}
	if err == nil {
		return vectors, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logutil.GetLogger(ctx).Warn("batch embedding failed, retry per chunk", zap.Int("batch", len(batch)), zap.Error(err))
	vectors = make([][]float32, len(batch))
	for i, c := range batch {
		vec, err := s.embedder.Embed(ctx, c.Text, ai.TaskTypeDocument)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			state.fail(c.ID, ai.AsEmbeddingError(err))
			continue
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Reindex loads the corpus at location and rebuilds indexName from it.
func (s *IndexService) Reindex(ctx context.Context, location string, indexName string) (*model.BuildReport, error) {
	if s.loader == nil {
		return nil, fmt.Errorf("corpus loader not configured: %w", appErr.ErrInvalid)
	}
	docs, err := s.loader.Load(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("load corpus %s: %w", location, err)
	}
	logutil.GetLogger(ctx).Info("corpus loaded", zap.String("location", location), zap.Int("documents", len(docs)))
	return s.Build(ctx, docs, indexName)
}

// Exists reports whether indexName has been built.
func (s *IndexService) Exists(ctx context.Context, indexName string) (bool, error) {
	return s.index.Exists(ctx, indexName)
}
