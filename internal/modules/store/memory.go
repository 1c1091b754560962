package store

import (
	"context"
	"errors"
	"sync"

	"thumbfetch/internal/models"
	"thumbfetch/internal/modules/filter"
)

// ErrClosed is returned by a Memory store after Close.
var ErrClosed = errors.New("store: closed")

// Document is a record together with the fields filters look at.
type Document struct {
	ID        string
	CreatedBy string
	Folder    string
	Thumbnail *models.Thumbnail
}

// Memory is an in-process RecordStore. Documents keep insertion order.
type Memory struct {
	mu     sync.Mutex
	docs   []Document
	closed bool
	finds  int
}

// NewMemory returns a store holding docs.
func NewMemory(docs ...Document) *Memory {
	return &Memory{docs: append([]Document(nil), docs...)}
}

// Count implements RecordStore.
func (m *Memory) Count(ctx context.Context, f filter.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	var n int64
	for _, d := range m.docs {
		if f.Match(d.CreatedBy, d.Folder) {
			n++
		}
	}
	return n, nil
}

// FindPage implements RecordStore.
func (m *Memory) FindPage(ctx context.Context, f filter.Filter, limit, skip int64) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.finds++

	var page []models.Record
	var seen int64
	for _, d := range m.docs {
		if !f.Match(d.CreatedBy, d.Folder) {
			continue
		}
		seen++
		if seen <= skip {
			continue
		}
		if int64(len(page)) == limit {
			break
		}
		rec := models.Record{ID: d.ID}
		if d.Thumbnail != nil {
			t := *d.Thumbnail
			rec.Thumbnail = &t
		}
		page = append(page, rec)
	}
	return page, nil
}

// Close implements RecordStore.
func (m *Memory) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Finds returns how many FindPage calls were served.
func (m *Memory) Finds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finds
}
