package vectorindex_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/testutil"
	"github.com/xxxsen/ragchat/internal/vectorindex"
)

func rec(id string, vec ...float32) model.IndexRecord {
	return model.IndexRecord{ID: id, Vector: vec, Text: "text " + id, Metadata: model.RecordMetadata{DocumentID: "doc", Source: id + ".txt"}}
}

func runIndexContract(t *testing.T, idx vectorindex.Index) {
	ctx := context.Background()
	ns := fmt.Sprintf("kb-%d", time.Now().UnixNano())

	ok, err := idx.Exists(ctx, ns)
	require.NoError(t, err)
	require.False(t, ok)
	_, err = idx.Query(ctx, ns, []float32{1, 0, 0}, 2)
	require.ErrorIs(t, err, appErr.ErrIndexNotFound)

	require.NoError(t, idx.Upsert(ctx, ns, []model.IndexRecord{
		rec("a", 1, 0, 0),
		rec("b", 0, 1, 0),
		rec("c", 0.9, 0.1, 0),
		rec("d", 1, 0, 0),
	}))
	ok, err = idx.Exists(ctx, ns)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := idx.Query(ctx, ns, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "a", res[0].ID)
	require.Equal(t, "d", res[1].ID)
	require.Equal(t, "c", res[2].ID)
	require.InDelta(t, 1.0, res[0].Score, 1e-6)
	require.GreaterOrEqual(t, res[1].Score, res[2].Score)
	require.Equal(t, "a.txt", res[0].Metadata.Source)

	// fewer than k
	res, err = idx.Query(ctx, ns, []float32{0, 1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 4)
	require.Equal(t, "b", res[0].ID)

	// upsert overwrites, keeps count
	require.NoError(t, idx.Upsert(ctx, ns, []model.IndexRecord{rec("b", 0, 0, 1)}))
	res, err = idx.Query(ctx, ns, []float32{0, 0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, res, 4)
	require.Equal(t, "b", res[0].ID)

	err = idx.Upsert(ctx, ns, []model.IndexRecord{rec("e", 1, 0)})
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
	_, err = idx.Query(ctx, ns, []float32{1, 0}, 1)
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
	_, err = idx.Query(ctx, ns, []float32{1, 0, 0}, 0)
	require.ErrorIs(t, err, appErr.ErrInvalid)
	err = idx.Upsert(ctx, ns+"-mixed", []model.IndexRecord{rec("x", 1, 0), rec("y", 1, 0, 0)})
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
}

func TestMemoryIndex(t *testing.T) {
	idx := vectorindex.NewMemory()
	defer idx.Close()
	runIndexContract(t, idx)
}

func TestSQLiteIndex(t *testing.T) {
	idx := vectorindex.NewSQLite(testutil.OpenSQLite(t))
	defer idx.Close()
	runIndexContract(t, idx)
}

func TestPGVectorIndex(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	runIndexContract(t, vectorindex.NewPGVector(conn))
}

func TestNewFromConfig(t *testing.T) {
	idx, err := vectorindex.New(config.VectorIndexConfig{Type: "memory", Timeout: 1000})
	require.NoError(t, err)
	runIndexContract(t, idx)

	idx, err = vectorindex.New(config.VectorIndexConfig{Type: "sqlite", Data: map[string]interface{}{"path": t.TempDir() + "/index.db"}})
	require.NoError(t, err)
	defer idx.Close()
	runIndexContract(t, idx)

	_, err = vectorindex.New(config.VectorIndexConfig{Type: "annoy"})
	require.Error(t, err)
	_, err = vectorindex.New(config.VectorIndexConfig{Type: "sqlite"})
	require.Error(t, err)
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, vectorindex.Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	require.InDelta(t, 0.0, vectorindex.Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, -1.0, vectorindex.Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	require.Zero(t, vectorindex.Cosine([]float32{0, 0}, []float32{1, 0}))
	require.Zero(t, vectorindex.Cosine([]float32{1}, []float32{1, 0}))
}
