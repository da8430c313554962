package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

// Index stores embedding records under named namespaces and answers
// k-nearest-neighbour queries by cosine similarity. Every record in a
// namespace has the same dimension.
type Index interface {
	Upsert(ctx context.Context, namespace string, records []model.IndexRecord) error
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]model.ScoredRecord, error)
	Exists(ctx context.Context, namespace string) (bool, error)
	Close() error
}

type Factory func(args interface{}) (Index, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.VectorIndexConfig) (Index, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("vector_index.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector index type: %s", cfg.Type)
	}
	idx, err := factory(cfg.Data)
	if err != nil {
		return nil, err
	}
	return WithTimeout(idx, time.Duration(cfg.Timeout)*time.Millisecond), nil
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("vector index config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector index config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector index config: %w", err)
	}
	return nil
}

// checkBatch validates that every record has dim components (or a common
// dimension when dim is 0) and returns it.
func checkBatch(records []model.IndexRecord, dim int) (int, error) {
	for _, rec := range records {
		if rec.ID == "" {
			return 0, fmt.Errorf("record id is required: %w", appErr.ErrInvalid)
		}
		if len(rec.Vector) == 0 {
			return 0, fmt.Errorf("record %s has empty vector: %w", rec.ID, appErr.ErrInvalid)
		}
		if dim == 0 {
			dim = len(rec.Vector)
		}
		if len(rec.Vector) != dim {
			return 0, fmt.Errorf("record %s has dimension %d, want %d: %w", rec.ID, len(rec.Vector), dim, appErr.ErrDimensionMismatch)
		}
	}
	return dim, nil
}

func checkQuery(vector []float32, dim int, k int) error {
	if k < 1 {
		return fmt.Errorf("k must be >= 1, got %d: %w", k, appErr.ErrInvalid)
	}
	if len(vector) != dim {
		return fmt.Errorf("query dimension %d, index dimension %d: %w", len(vector), dim, appErr.ErrDimensionMismatch)
	}
	return nil
}
