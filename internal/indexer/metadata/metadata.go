// Package metadata persists, per logical index, the schema version and the
// detail configuration fingerprint the index was last built with.
package metadata

import (
	"bytes"
	"context"
	"sync"
)

// IndexMetadata is the stored build state of one index.
type IndexMetadata struct {
	IndexName         string
	SchemaVersion     int
	ConfigFingerprint []byte
}

// Matches reports whether the index was built with the given version and
// fingerprint.
func (m *IndexMetadata) Matches(version int, fingerprint []byte) bool {
	return m.SchemaVersion == version && bytes.Equal(m.ConfigFingerprint, fingerprint)
}

// Store reads and writes index metadata.
type Store interface {
	// Find returns the metadata of the index, or nil when none is stored.
	Find(ctx context.Context, indexName string) (*IndexMetadata, error)

	// Update stores the metadata of the index, replacing any previous row.
	Update(ctx context.Context, indexName string, version int, fingerprint []byte) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]IndexMetadata
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]IndexMetadata)}
}

func (s *MemoryStore) Find(ctx context.Context, indexName string) (*IndexMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[indexName]
	if !ok {
		return nil, nil
	}
	row.ConfigFingerprint = bytes.Clone(row.ConfigFingerprint)
	return &row, nil
}

func (s *MemoryStore) Update(ctx context.Context, indexName string, version int, fingerprint []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[indexName] = IndexMetadata{
		IndexName:         indexName,
		SchemaVersion:     version,
		ConfigFingerprint: bytes.Clone(fingerprint),
	}
	return nil
}
