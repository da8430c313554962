package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/testutil"
	"github.com/xxxsen/ragchat/internal/vectorindex"
)

func allRecords(t *testing.T, idx vectorindex.Index, ns string) []model.ScoredRecord {
	t.Helper()
	probe := newHashEmbedder()
	vec, err := probe.Embed(context.Background(), "probe", "")
	require.NoError(t, err)
	res, err := idx.Query(context.Background(), ns, vec, 1<<20)
	require.NoError(t, err)
	return res
}

func sampleDocs() []model.Document {
	return []model.Document{
		model.NewDocument("library.txt", "The library opens at 8am and closes at 10pm."),
		model.NewDocument("programs.txt", strings.Repeat("We offer a data science program and a web development program. ", 20)),
	}
}

func TestBuildWritesEveryChunk(t *testing.T) {
	idx := vectorindex.NewMemory()
	svc := NewIndexService(newHashEmbedder(), idx, nil, IndexConfig{ChunkSize: 200, ChunkOverlap: 40, BatchSize: 3, Concurrency: 2})
	report, err := svc.Build(context.Background(), sampleDocs(), "kb")
	require.NoError(t, err)
	require.Equal(t, 2, report.Documents)
	require.Greater(t, report.Chunks, 2)
	require.Equal(t, report.Chunks, report.Written)
	require.False(t, report.Partial())
	require.Len(t, allRecords(t, idx, "kb"), report.Chunks)

	ok, err := svc.Exists(context.Background(), "kb")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBuildIsIdempotent(t *testing.T) {
	idx := vectorindex.NewSQLite(testutil.OpenSQLite(t))
	svc := NewIndexService(newHashEmbedder(), idx, nil, IndexConfig{ChunkSize: 100, ChunkOverlap: 20, BatchSize: 4, Concurrency: 3})
	first, err := svc.Build(context.Background(), sampleDocs(), "kb")
	require.NoError(t, err)
	ids := func() []string {
		var out []string
		for _, r := range allRecords(t, idx, "kb") {
			out = append(out, r.ID)
		}
		return out
	}
	before := ids()
	second, err := svc.Build(context.Background(), sampleDocs(), "kb")
	require.NoError(t, err)
	require.Equal(t, first.Written, second.Written)
	require.ElementsMatch(t, before, ids())
	require.Len(t, before, first.Chunks)
}

func TestBuildIsolatesRejectedChunk(t *testing.T) {
	docs := []model.Document{
		model.NewDocument("good.txt", "alpha beta gamma"),
		model.NewDocument("bad.txt", "this chunk contains FORBIDDEN content"),
		model.NewDocument("also-good.txt", "delta epsilon"),
	}
	idx := vectorindex.NewMemory()
	emb := &rejectingEmbedder{IEmbedder: newHashEmbedder(), marker: "FORBIDDEN"}
	svc := NewIndexService(emb, idx, nil, IndexConfig{ChunkSize: 100, ChunkOverlap: 10, BatchSize: 10, Concurrency: 1})
	report, err := svc.Build(context.Background(), docs, "kb")
	require.NoError(t, err)
	require.Equal(t, 3, report.Chunks)
	require.Equal(t, 2, report.Written)
	require.Len(t, report.Failed, 1)
	require.Equal(t, model.ChunkID(docs[1].ID, 0), report.Failed[0].ChunkID)
	require.Contains(t, report.Failed[0].Reason, "permanent")
	require.True(t, report.Partial())
}

func TestBuildSkipsMalformedDocument(t *testing.T) {
	docs := []model.Document{
		model.NewDocument("ok.txt", "plain text"),
		model.NewDocument("broken.bin", "bad \xff bytes"),
		model.NewDocument("nul.bin", "nul\x00byte"),
	}
	svc := NewIndexService(newHashEmbedder(), vectorindex.NewMemory(), nil, IndexConfig{ChunkSize: 100, ChunkOverlap: 10})
	report, err := svc.Build(context.Background(), docs, "kb")
	require.NoError(t, err)
	require.Equal(t, 1, report.Written)
	require.Len(t, report.Skipped, 2)
	require.Equal(t, docs[1].ID, report.Skipped[0].DocumentID)
	require.Equal(t, "nul.bin", report.Skipped[1].Source)
}

func TestBuildRejectsDimensionDrift(t *testing.T) {
	docs := []model.Document{
		model.NewDocument("a.txt", "first document"),
		model.NewDocument("b.txt", "SHORT vector document"),
	}
	emb := &shortEmbedder{IEmbedder: newHashEmbedder(), marker: "SHORT"}
	svc := NewIndexService(emb, vectorindex.NewMemory(), nil, IndexConfig{ChunkSize: 100, ChunkOverlap: 10, BatchSize: 10, Concurrency: 1})
	report, err := svc.Build(context.Background(), docs, "kb")
	require.NoError(t, err)
	require.Equal(t, 1, report.Written)
	require.Len(t, report.Failed, 1)
	require.Contains(t, report.Failed[0].Reason, appErr.ErrDimensionMismatch.Error())
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewIndexService(newHashEmbedder(), vectorindex.NewMemory(), nil, IndexConfig{ChunkSize: 50, ChunkOverlap: 5})
	_, err := svc.Build(ctx, sampleDocs(), "kb")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildRequiresIndexName(t *testing.T) {
	svc := NewIndexService(newHashEmbedder(), vectorindex.NewMemory(), nil, IndexConfig{})
	_, err := svc.Build(context.Background(), sampleDocs(), "")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestReindex(t *testing.T) {
	idx := vectorindex.NewMemory()
	loader := &staticLoader{docs: sampleDocs()}
	svc := NewIndexService(newHashEmbedder(), idx, loader, IndexConfig{ChunkSize: 1000, ChunkOverlap: 200})
	report, err := svc.Reindex(context.Background(), "/corpus", "kb")
	require.NoError(t, err)
	require.Equal(t, 2, report.Documents)

	loader.err = errors.New("bucket not found")
	_, err = svc.Reindex(context.Background(), "s3://missing", "kb")
	require.Error(t, err)
	require.Contains(t, err.Error(), "s3://missing")

	_, err = NewIndexService(newHashEmbedder(), idx, nil, IndexConfig{}).Reindex(context.Background(), "/x", "kb")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
