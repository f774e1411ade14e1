// Package cache provides a capacity-bounded map with least-recently-used eviction.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Bounded is a fixed-capacity map. Inserting past capacity evicts the least
// recently used entry. It is safe for concurrent use.
type Bounded[K comparable, V any] struct {
	entries *lru.Cache[K, V]
}

// NewBounded creates a map holding at most capacity entries.
func NewBounded[K comparable, V any](capacity int) (*Bounded[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	entries, err := lru.New[K, V](capacity)
	if err != nil {
		return nil, err
	}
	return &Bounded[K, V]{entries: entries}, nil
}

// Put stores the value, marks it as recently used and reports whether an
// older entry was evicted.
func (b *Bounded[K, V]) Put(key K, value V) (evicted bool) {
	return b.entries.Add(key, value)
}

// Contains reports presence without touching recency.
func (b *Bounded[K, V]) Contains(key K) bool {
	return b.entries.Contains(key)
}
