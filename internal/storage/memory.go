package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/uitrack/uitrack/internal/models"
)

// InMemoryEventStore keeps events in memory. It is not durable and resets
// on process restart; it backs tests and serves as the last-resort
// fallback when no database is reachable.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []*models.TrackingEvent
	sorted bool
}

// NewInMemoryEventStore constructs an empty in-memory store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{sorted: true}
}

// Insert appends a copy of the event.
func (s *InMemoryEventStore) Insert(ctx context.Context, ev *models.TrackingEvent) error {
	if ev == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ev
	if len(s.events) > 0 && cp.Timestamp.Before(s.events[len(s.events)-1].Timestamp) {
		s.sorted = false
	}
	s.events = append(s.events, &cp)
	return nil
}

// Query returns matching events ordered newest-first.
func (s *InMemoryEventStore) Query(ctx context.Context, f Filter, limit, offset int) ([]*models.TrackingEvent, error) {
	s.mu.Lock()
	if !s.sorted {
		sort.SliceStable(s.events, func(i, j int) bool {
			return s.events[i].Timestamp.Before(s.events[j].Timestamp)
		})
		s.sorted = true
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.TrackingEvent, 0)
	skipped := 0
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if !f.Matches(ev) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, ev)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Count returns the number of events matching the filter.
func (s *InMemoryEventStore) Count(ctx context.Context, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, ev := range s.events {
		if f.Matches(ev) {
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryEventStore) Close() error {
	return nil
}
