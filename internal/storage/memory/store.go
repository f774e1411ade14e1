// Package memory implements storage.EventStore in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/eventidx/eventidx/internal/storage"
	"github.com/eventidx/eventidx/pkg/model"
)

// Store is an in-memory event table.
type Store struct {
	table string

	mu     sync.RWMutex
	events map[string]*model.EventSummary
}

var _ storage.EventStore = (*Store)(nil)

// New creates an empty table.
func New(table string) *Store {
	return &Store{table: table, events: make(map[string]*model.EventSummary)}
}

func (s *Store) Table() string { return s.table }

func (s *Store) FindByUUIDs(ctx context.Context, uuids []string) ([]*model.EventSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.EventSummary, 0, len(uuids))
	seen := make(map[string]struct{}, len(uuids))
	for _, id := range uuids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if e, ok := s.events[id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *Store) ListBatch(ctx context.Context, afterUUID string, asOf int64, limit int) ([]*model.EventSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.events))
	for id, e := range s.events {
		if id > afterUUID && e.UpdateTime <= asOf {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*model.EventSummary, len(ids))
	for i, id := range ids {
		out[i] = s.events[id].Clone()
	}
	return out, nil
}

func (s *Store) ImportEvent(ctx context.Context, event *model.EventSummary) error {
	if err := event.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.UUID]; ok {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, event.UUID)
	}
	s.events[event.UUID] = event.Clone()
	return nil
}

func (s *Store) SaveEvent(ctx context.Context, event *model.EventSummary) error {
	if err := event.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.UUID] = event.Clone()
	return nil
}

func (s *Store) DeleteEvents(ctx context.Context, uuids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range uuids {
		delete(s.events, id)
	}
	return nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
