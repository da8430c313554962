package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/db"
	"github.com/xxxsen/ragchat/internal/model"
	"github.com/xxxsen/ragchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

// pgvectorIndex ranks with the pgvector cosine distance operator.
type pgvectorIndex struct {
	db     *sqlx.DB
	ownsDB bool
}

type pgRecordRow struct {
	ID        string          `db:"id"`
	Text      string          `db:"text"`
	Metadata  []byte          `db:"metadata"`
	Embedding pgvector.Vector `db:"embedding"`
	Score     float64         `db:"score"`
}

func init() {
	Register("pgvector", createPGVectorIndex)
}

func createPGVectorIndex(args interface{}) (Index, error) {
	cfg := config.DatabaseConfig{}
	if err := decodeConfig(args, &cfg); err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open pgvector index: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate pgvector index: %w", err)
	}
	idx := NewPGVector(conn).(*pgvectorIndex)
	idx.ownsDB = true
	return idx, nil
}

// NewPGVector wraps an already migrated postgres connection. Close does not
// close conn.
func NewPGVector(conn *sql.DB) Index {
	return &pgvectorIndex{db: sqlx.NewDb(conn, "postgres")}
}

func (p *pgvectorIndex) dimension(ctx context.Context, q sqlx.QueryerContext, namespace string, forUpdate bool) (int, error) {
	sqlStr, args, err := builder.BuildSelect("index_namespaces", map[string]interface{}{"name": namespace}, []string{"dimension"})
	if err != nil {
		return 0, err
	}
	if forUpdate {
		sqlStr += " FOR UPDATE"
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var dim int
	if err := sqlx.GetContext(ctx, q, &dim, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErr.ErrIndexNotFound
		}
		return 0, err
	}
	return dim, nil
}

func (p *pgvectorIndex) Upsert(ctx context.Context, namespace string, records []model.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := checkBatch(records, 0); err != nil {
		return err
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO index_namespaces (name, dimension, ctime) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING",
		namespace, len(records[0].Vector), now); err != nil {
		return err
	}
	dim, err := p.dimension(ctx, tx, namespace, true)
	if err != nil {
		return err
	}
	if _, err := checkBatch(records, dim); err != nil {
		return err
	}
	const upsert = `INSERT INTO index_records (namespace, id, embedding, text, metadata, mtime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (namespace, id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			mtime = EXCLUDED.mtime`
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsert, namespace, rec.ID, pgvector.NewVector(rec.Vector), rec.Text, meta, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *pgvectorIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]model.ScoredRecord, error) {
	dim, err := p.dimension(ctx, p.db, namespace, false)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(vector, dim, k); err != nil {
		return nil, err
	}
	const query = `
		SELECT id, text, metadata, embedding, 1 - (embedding <=> $2) AS score
		FROM index_records
		WHERE namespace = $1
		ORDER BY embedding <=> $2, seq
		LIMIT $3
	`
	var rows []pgRecordRow
	if err := p.db.SelectContext(ctx, &rows, query, namespace, pgvector.NewVector(vector), k); err != nil {
		return nil, err
	}
	out := make([]model.ScoredRecord, 0, len(rows))
	for _, row := range rows {
		rec := model.ScoredRecord{
			IndexRecord: model.IndexRecord{ID: row.ID, Text: row.Text, Vector: row.Embedding.Slice()},
			Score:       row.Score,
		}
		if err := json.Unmarshal(row.Metadata, &rec.Metadata); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (p *pgvectorIndex) Exists(ctx context.Context, namespace string) (bool, error) {
	_, err := p.dimension(ctx, p.db, namespace, false)
	if errors.Is(err, appErr.ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *pgvectorIndex) Close() error {
	if !p.ownsDB {
		return nil
	}
	return p.db.Close()
}
