package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/vectorindex"
)

type Retriever struct {
	embedder ai.IEmbedder
	index    vectorindex.Index
}

func NewRetriever(embedder ai.IEmbedder, index vectorindex.Index) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Search returns up to k passages of indexName ranked by cosine similarity
// to query. Every failure is a *errors.RetrievalError.
func (r *Retriever) Search(ctx context.Context, query string, indexName string, k int) ([]model.Passage, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("index", indexName))
	wrap := func(err error) error {
		return &appErr.RetrievalError{IndexName: indexName, Err: err}
	}
	if k < 1 {
		return nil, wrap(fmt.Errorf("k must be >= 1, got %d: %w", k, appErr.ErrInvalid))
	}
	ok, err := r.index.Exists(ctx, indexName)
	if err != nil {
		logger.Error("check index failed", zap.Error(err))
		return nil, wrap(err)
	}
	if !ok {
		return nil, wrap(appErr.ErrIndexNotFound)
	}
	vec, err := r.embedder.Embed(ctx, query, ai.TaskTypeQuery)
	if err != nil {
		logger.Error("embed query failed", zap.Error(err))
		return nil, wrap(ai.AsEmbeddingError(err))
	}
	records, err := r.index.Query(ctx, indexName, vec, k)
	if err != nil {
		logger.Error("query index failed", zap.Error(err))
		return nil, wrap(err)
	}
	passages := make([]model.Passage, 0, len(records))
	for _, rec := range records {
		passages = append(passages, model.Passage{Text: rec.Text, Metadata: rec.Metadata, Score: rec.Score})
	}
	logger.Debug("retrieved passages", zap.Int("k", k), zap.Int("count", len(passages)))
	return passages, nil
}
