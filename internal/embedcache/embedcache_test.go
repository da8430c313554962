package embedcache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/embedcache"
	"github.com/xxxsen/ragchat/internal/repo"
	"github.com/xxxsen/ragchat/internal/testutil"
)

type countingEmbedder struct {
	ai.IEmbedder
	texts atomic.Int32
	fail  bool
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if c.fail {
		return nil, errors.New("offline")
	}
	c.texts.Add(int32(len(texts)))
	return c.IEmbedder.EmbedBatch(ctx, texts, taskType)
}

func newCounting() *countingEmbedder {
	return &countingEmbedder{IEmbedder: ai.NewEmbedder(ai.NewHashingProvider(32), "test")}
}

func TestLruCache(t *testing.T) {
	inner := newCounting()
	e := embedcache.WrapLruCacheToEmbedder(inner, 16, time.Minute)
	ctx := context.Background()

	first, err := e.EmbedBatch(ctx, []string{"alpha", "beta"}, ai.TaskTypeDocument)
	require.NoError(t, err)
	second, err := e.EmbedBatch(ctx, []string{"beta", "gamma", "alpha"}, ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, int32(3), inner.texts.Load())
	require.Equal(t, first[0], second[2])
	require.Equal(t, first[1], second[0])

	_, err = e.Embed(ctx, "alpha", ai.TaskTypeQuery)
	require.NoError(t, err)
	require.Equal(t, int32(4), inner.texts.Load())

	require.Same(t, inner, embedcache.WrapLruCacheToEmbedder(inner, 0, time.Minute))
}

func TestDBCache(t *testing.T) {
	db := testutil.OpenSQLite(t)
	cacheRepo := repo.NewEmbeddingCacheRepo(db)
	inner := newCounting()
	e := embedcache.WrapDBCacheToEmbedder(inner, cacheRepo)
	ctx := context.Background()

	want, err := e.EmbedBatch(ctx, []string{"alpha", "beta"}, ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, int32(2), inner.texts.Load())

	inner.fail = true
	got, err := e.EmbedBatch(ctx, []string{"beta", "alpha"}, ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, want[1], got[0])
	require.Equal(t, want[0], got[1])

	_, err = e.Embed(ctx, "delta", ai.TaskTypeDocument)
	require.Error(t, err)
	require.Equal(t, "hashing:test", e.ModelName())
}
