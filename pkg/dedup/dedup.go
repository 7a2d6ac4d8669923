// Package dedup suppresses repeated post ids within a run. The first
// occurrence of an id is accepted, every later one is dropped.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"fbposts/pkg/post"
)

// Index is the set of post ids seen so far.
type Index interface {
	// Add inserts id and reports whether it was absent.
	Add(ctx context.Context, id string) (bool, error)
	Contains(ctx context.Context, id string) (bool, error)
	Len(ctx context.Context) (int, error)
}

// MemoryIndex is an in-process Index. Lookups share a read lock; inserts
// take the write lock for a single check-and-set.
type MemoryIndex struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{seen: make(map[string]struct{})}
}

func (m *MemoryIndex) Add(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	_, exists := m.seen[id]
	m.mu.RUnlock()
	if exists {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.seen[id]; exists {
		return false, nil
	}
	m.seen[id] = struct{}{}
	return true, nil
}

func (m *MemoryIndex) Contains(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.seen[id]
	return exists, nil
}

func (m *MemoryIndex) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seen), nil
}

// Deduplicator filters records through an Index and counts its decisions.
// It is safe for concurrent use when its Index is.
type Deduplicator struct {
	index      Index
	accepted   atomic.Int64
	suppressed atomic.Int64
}

func New(index Index) *Deduplicator {
	if index == nil {
		index = NewMemoryIndex()
	}
	return &Deduplicator{index: index}
}

// Accept reports whether rec is the first record with its post id.
func (d *Deduplicator) Accept(ctx context.Context, rec post.Record) (bool, error) {
	if rec.PostID == "" {
		return false, fmt.Errorf("%w: empty post_id", post.ErrInvalidRecord)
	}

	added, err := d.index.Add(ctx, rec.PostID)
	if err != nil {
		return false, fmt.Errorf("dedup index: %w", err)
	}
	if added {
		d.accepted.Add(1)
	} else {
		d.suppressed.Add(1)
	}
	return added, nil
}

// Len returns how many distinct ids the index holds.
func (d *Deduplicator) Len(ctx context.Context) (int, error) {
	return d.index.Len(ctx)
}

type Stats struct {
	Accepted   int64
	Suppressed int64
}

func (d *Deduplicator) Stats() Stats {
	return Stats{
		Accepted:   d.accepted.Load(),
		Suppressed: d.suppressed.Load(),
	}
}
