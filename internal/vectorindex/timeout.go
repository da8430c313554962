package vectorindex

import (
	"context"
	"time"

	"github.com/xxxsen/ragchat/internal/model"
)

// WithTimeout bounds every call on idx by d. A non-positive d returns idx.
func WithTimeout(idx Index, d time.Duration) Index {
	if d <= 0 {
		return idx
	}
	return &timeoutIndex{next: idx, timeout: d}
}

type timeoutIndex struct {
	next    Index
	timeout time.Duration
}

func (t *timeoutIndex) Upsert(ctx context.Context, namespace string, records []model.IndexRecord) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Upsert(ctx, namespace, records)
}

func (t *timeoutIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]model.ScoredRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Query(ctx, namespace, vector, k)
}

func (t *timeoutIndex) Exists(ctx context.Context, namespace string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Exists(ctx, namespace)
}

func (t *timeoutIndex) Close() error {
	return t.next.Close()
}
