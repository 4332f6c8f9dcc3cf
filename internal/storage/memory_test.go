package storage

import (
	"context"
	"testing"
	"time"

	"github.com/uitrack/uitrack/internal/models"
)

func seedEvents(t *testing.T, s *InMemoryEventStore, events ...*models.TrackingEvent) {
	t.Helper()
	for _, ev := range events {
		if err := s.Insert(context.Background(), ev); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
}

func TestQueryNewestFirst(t *testing.T) {
	s := NewInMemoryEventStore()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seedEvents(t, s,
		&models.TrackingEvent{ID: "a", ComponentName: "Button", Timestamp: base},
		&models.TrackingEvent{ID: "c", ComponentName: "Button", Timestamp: base.Add(2 * time.Minute)},
		&models.TrackingEvent{ID: "b", ComponentName: "Button", Timestamp: base.Add(time.Minute)},
	)

	events, err := s.Query(context.Background(), Filter{}, 0, 0)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"c", "b", "a"} {
		if events[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, events[i].ID)
		}
	}
}

func TestQueryLimitOffset(t *testing.T) {
	s := NewInMemoryEventStore()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		seedEvents(t, s, &models.TrackingEvent{
			ID:            string(rune('a' + i)),
			ComponentName: "Button",
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
		})
	}

	events, err := s.Query(context.Background(), Filter{}, 2, 1)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "d" || events[1].ID != "c" {
		t.Errorf("unexpected page: %s, %s", events[0].ID, events[1].ID)
	}
}

func TestFilterMatches(t *testing.T) {
	s := NewInMemoryEventStore()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seedEvents(t, s,
		&models.TrackingEvent{ID: "1", ComponentName: "Button", Variant: "primary", Action: models.ActionClick, Timestamp: base},
		&models.TrackingEvent{ID: "2", ComponentName: "Button", Variant: "ghost", Action: models.ActionHover, Timestamp: base.Add(time.Hour)},
		&models.TrackingEvent{ID: "3", ComponentName: "Card", Variant: "primary", Action: models.ActionClick, Timestamp: base.Add(2 * time.Hour)},
	)

	events, err := s.Query(context.Background(), Filter{ComponentName: "Button", Action: models.ActionClick}, 0, 0)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != "1" {
		t.Fatalf("expected only event 1, got %v", events)
	}

	start := base.Add(30 * time.Minute)
	count, err := s.Count(context.Background(), Filter{Start: &start})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestInsertCopiesEvent(t *testing.T) {
	s := NewInMemoryEventStore()
	ev := &models.TrackingEvent{ID: "x", ComponentName: "Button", Timestamp: time.Now()}
	seedEvents(t, s, ev)

	ev.ComponentName = "mutated"

	events, err := s.Query(context.Background(), Filter{}, 0, 0)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if events[0].ComponentName != "Button" {
		t.Errorf("store returned caller-mutated event")
	}
}
