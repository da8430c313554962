package vectorindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/repo"
)

type sqliteConfig struct {
	Path string `json:"path"`
}

// sqliteIndex keeps records in a local sqlite file and scores them in
// process.
type sqliteIndex struct {
	mu      sync.Mutex
	db      *sql.DB
	ownsDB  bool
	records *repo.IndexRecordRepo
}

func init() {
	Register("sqlite", createSQLiteIndex)
}

func createSQLiteIndex(args interface{}) (Index, error) {
	cfg := &sqliteConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite vector index path is required")
	}
	db, err := repo.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite index: %w", err)
	}
	idx := NewSQLite(db).(*sqliteIndex)
	idx.ownsDB = true
	return idx, nil
}

// NewSQLite wraps an already migrated database. Close does not close db.
func NewSQLite(db *sql.DB) Index {
	return &sqliteIndex{db: db, records: repo.NewIndexRecordRepo(db)}
}

func (s *sqliteIndex) Upsert(ctx context.Context, namespace string, records []model.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := s.records.Dimension(ctx, namespace)
	if err != nil && !errors.Is(err, appErr.ErrIndexNotFound) {
		return err
	}
	dim, err = checkBatch(records, dim)
	if err != nil {
		return err
	}
	return s.records.Upsert(ctx, namespace, dim, records)
}

func (s *sqliteIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]model.ScoredRecord, error) {
	dim, err := s.records.Dimension(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(vector, dim, k); err != nil {
		return nil, err
	}
	records, err := s.records.List(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return topK(records, vector, k), nil
}

func (s *sqliteIndex) Exists(ctx context.Context, namespace string) (bool, error) {
	_, err := s.records.Dimension(ctx, namespace)
	if errors.Is(err, appErr.ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteIndex) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
