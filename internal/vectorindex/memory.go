package vectorindex

import (
	"context"
	"sync"

	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

type memoryNamespace struct {
	dim     int
	records []model.IndexRecord
	pos     map[string]int
}

type memoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]*memoryNamespace
}

func init() {
	Register("memory", func(args interface{}) (Index, error) {
		return NewMemory(), nil
	})
}

// NewMemory returns a process-local index. Contents are lost on exit.
func NewMemory() Index {
	return &memoryIndex{namespaces: make(map[string]*memoryNamespace)}
}

func (m *memoryIndex) Upsert(ctx context.Context, namespace string, records []model.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.namespaces[namespace]
	dim := 0
	if ns != nil {
		dim = ns.dim
	}
	dim, err := checkBatch(records, dim)
	if err != nil {
		return err
	}
	if ns == nil {
		ns = &memoryNamespace{dim: dim, pos: make(map[string]int)}
		m.namespaces[namespace] = ns
	}
	for _, rec := range records {
		rec.Vector = append([]float32(nil), rec.Vector...)
		if i, ok := ns.pos[rec.ID]; ok {
			ns.records[i] = rec
			continue
		}
		ns.pos[rec.ID] = len(ns.records)
		ns.records = append(ns.records, rec)
	}
	return nil
}

func (m *memoryIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]model.ScoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns := m.namespaces[namespace]
	if ns == nil {
		return nil, appErr.ErrIndexNotFound
	}
	if err := checkQuery(vector, ns.dim, k); err != nil {
		return nil, err
	}
	return topK(ns.records, vector, k), nil
}

func (m *memoryIndex) Exists(ctx context.Context, namespace string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.namespaces[namespace]
	return ok, nil
}

func (m *memoryIndex) Close() error {
	return nil
}
