package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

type IndexRecordRepo struct {
	db *sql.DB
}

func NewIndexRecordRepo(db *sql.DB) *IndexRecordRepo {
	return &IndexRecordRepo{db: db}
}

// Dimension returns the vector dimension registered for namespace, or
// ErrIndexNotFound.
func (r *IndexRecordRepo) Dimension(ctx context.Context, namespace string) (int, error) {
	sqlStr, args, err := builder.BuildSelect("index_namespaces", map[string]interface{}{"name": namespace}, []string{"dimension"})
	if err != nil {
		return 0, err
	}
	var dim int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&dim); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErr.ErrIndexNotFound
		}
		return 0, err
	}
	return dim, nil
}

// Upsert writes records into namespace, registering the namespace with dim on
// first use. Existing ids keep their insertion sequence.
func (r *IndexRecordRepo) Upsert(ctx context.Context, namespace string, dim int, records []model.IndexRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO index_namespaces (name, dimension, ctime) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING",
		namespace, dim, now); err != nil {
		return err
	}
	const upsert = `INSERT INTO index_records (namespace, id, embedding, text, metadata, mtime)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace, id) DO UPDATE SET
			embedding = excluded.embedding,
			text = excluded.text,
			metadata = excluded.metadata,
			mtime = excluded.mtime`
	for _, rec := range records {
		vec, err := json.Marshal(rec.Vector)
		if err != nil {
			return err
		}
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsert, namespace, rec.ID, vec, rec.Text, string(meta), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// List returns every record of namespace in insertion order.
func (r *IndexRecordRepo) List(ctx context.Context, namespace string) ([]model.IndexRecord, error) {
	where := map[string]interface{}{"namespace": namespace, "_orderby": "seq asc"}
	sqlStr, args, err := builder.BuildSelect("index_records", where, []string{"id", "embedding", "text", "metadata"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.IndexRecord
	for rows.Next() {
		var item model.IndexRecord
		var vec []byte
		var meta string
		if err := rows.Scan(&item.ID, &vec, &item.Text, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(vec, &item.Vector); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &item.Metadata); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func (r *IndexRecordRepo) Count(ctx context.Context, namespace string) (int64, error) {
	sqlStr, args, err := builder.BuildSelect("index_records", map[string]interface{}{"namespace": namespace}, []string{"COUNT(1)"})
	if err != nil {
		return 0, err
	}
	var cnt int64
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}
