package documents

import (
	"context"
	"fmt"
	"sync"

	"github.com/comigor/cryptosec-go/internal/logger"
)

// Memory is the in-process Repository used when SQLite is unavailable.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemory(docs []Document) *Memory {
	m := &Memory{docs: make(map[string]Document, len(docs))}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *Memory) List(_ context.Context) ([]Document, error) {
	m.mu.RLock()
	out := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sortByID(out)
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return d, nil
}

func (m *Memory) Search(ctx context.Context, query string) ([]Document, error) {
	docs, _ := m.List(ctx)
	return Filter(docs, query), nil
}

// Open returns the SQLite repository at path, falling back to an in-memory
// copy of the catalogue when the database cannot be opened.
func Open(ctx context.Context, path string) Repository {
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		logger.L.Warn("sqlite unavailable; using in-memory documents", "error", err)
		return NewMemory(Catalogue())
	}
	return db
}
