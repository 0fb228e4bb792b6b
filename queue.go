package main

import (
	"context"
	"sync"
)

// IngestionQueue is an append-only ordered set of video ids.
// Entries are never removed; playback walks it with a cursor.
type IngestionQueue struct {
	mu      sync.Mutex
	items   []string
	index   map[string]int
	changed chan struct{}
}

func NewIngestionQueue() *IngestionQueue {
	return &IngestionQueue{
		index:   make(map[string]int),
		changed: make(chan struct{}),
	}
}

// PushUnique appends id unless an equal id is already queued.
// It reports whether the id was appended.
func (q *IngestionQueue) PushUnique(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[id]; ok {
		return false
	}
	q.index[id] = len(q.items)
	q.items = append(q.items, id)

	// wake everyone waiting for growth
	close(q.changed)
	q.changed = make(chan struct{})
	return true
}

func (q *IngestionQueue) Get(i int) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i < 0 || i >= len(q.items) {
		return "", false
	}
	return q.items[i], true
}

func (q *IngestionQueue) IndexOf(id string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.index[id]
	return i, ok
}

// Len may be stale as soon as it returns; the queue only grows.
func (q *IngestionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Changed returns a channel that is closed by the next successful push
func (q *IngestionQueue) Changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changed
}

// WaitLen blocks until the queue holds at least n entries
func (q *IngestionQueue) WaitLen(ctx context.Context, n int) error {
	for {
		q.mu.Lock()
		if len(q.items) >= n {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-changed:
		}
	}
}
