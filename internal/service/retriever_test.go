package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/vectorindex"
)

func buildIndex(t *testing.T, idx vectorindex.Index, docs ...model.Document) {
	t.Helper()
	svc := NewIndexService(newHashEmbedder(), idx, nil, IndexConfig{ChunkSize: 1000, ChunkOverlap: 200})
	report, err := svc.Build(context.Background(), docs, "kb")
	require.NoError(t, err)
	require.False(t, report.Partial())
}

func TestSearchMissingIndex(t *testing.T) {
	r := NewRetriever(newHashEmbedder(), vectorindex.NewMemory())
	_, err := r.Search(context.Background(), "anything", "nope", 3)
	require.Error(t, err)
	require.True(t, appErr.IsRetrieval(err))
	require.ErrorIs(t, err, appErr.ErrIndexNotFound)
}

func TestSearchExactMatchRanksFirst(t *testing.T) {
	idx := vectorindex.NewMemory()
	texts := []string{
		"The library opens at 8am and closes at 10pm.",
		"Parking is free for students on weekends.",
		"The cafeteria serves lunch between noon and 2pm.",
	}
	var docs []model.Document
	for i, text := range texts {
		docs = append(docs, model.NewDocument(string(rune('a'+i))+".txt", text))
	}
	buildIndex(t, idx, docs...)
	r := NewRetriever(newHashEmbedder(), idx)
	for i, text := range texts {
		passages, err := r.Search(context.Background(), text, "kb", 2)
		require.NoError(t, err)
		require.Len(t, passages, 2)
		require.Equal(t, text, passages[0].Text)
		require.Equal(t, docs[i].Source, passages[0].Metadata.Source)
		require.InDelta(t, 1.0, passages[0].Score, 1e-6)
		require.GreaterOrEqual(t, passages[0].Score, passages[1].Score)
	}
}

func TestSearchFewerThanK(t *testing.T) {
	idx := vectorindex.NewMemory()
	buildIndex(t, idx, model.NewDocument("only.txt", "a single short document"))
	r := NewRetriever(newHashEmbedder(), idx)
	passages, err := r.Search(context.Background(), "document", "kb", 10)
	require.NoError(t, err)
	require.Len(t, passages, 1)
}

func TestSearchRejectsBadK(t *testing.T) {
	r := NewRetriever(newHashEmbedder(), vectorindex.NewMemory())
	_, err := r.Search(context.Background(), "q", "kb", 0)
	require.True(t, appErr.IsRetrieval(err))
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestSearchEmbedderFailure(t *testing.T) {
	idx := vectorindex.NewMemory()
	buildIndex(t, idx, model.NewDocument("a.txt", "content"))
	r := NewRetriever(&rejectingEmbedder{IEmbedder: newHashEmbedder(), marker: "boom"}, idx)
	_, err := r.Search(context.Background(), "boom", "kb", 1)
	require.True(t, appErr.IsRetrieval(err))
	require.ErrorIs(t, err, ai.ErrRejected)
	var embedErr *appErr.EmbeddingError
	require.True(t, errors.As(err, &embedErr))
	require.False(t, embedErr.Transient)
}
