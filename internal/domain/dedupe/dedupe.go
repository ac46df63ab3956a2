// Package dedupe tracks which (date, username) results have already been
// accepted so that a player is counted at most once per puzzle date.
package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/okian/minirank/internal/domain/model"
)

// Deduper records seen result keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key, e.g. when the result it guarded failed to persist.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key builds the identity of a daily result.
func Key(date time.Time, username string) string {
	return model.FormatDay(date) + "/" + username
}

// inMemoryDeduper keeps keys in a map and, when bounded, evicts the oldest
// recorded key first.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // key -> insertion sequence
	order   []string          // insertion order, may hold stale keys
	seq     uint64
	maxSize int // <= 0 means unbounded
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 {
		for len(d.seen) >= d.maxSize {
			d.evictOldest()
		}
	}
	d.seq++
	d.seen[key] = d.seq
	d.order = append(d.order, key)
	return false
}

// Unrecord implements Deduper. The order slice is cleaned lazily on eviction.
func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// evictOldest drops the earliest live key. Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	for len(d.order) > 0 {
		key := d.order[0]
		d.order = d.order[1:]
		if _, ok := d.seen[key]; ok {
			delete(d.seen, key)
			return
		}
	}
}

// Size returns the number of recorded keys.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
