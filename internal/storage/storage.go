package storage

import (
	"context"
	"time"

	"github.com/uitrack/uitrack/internal/models"
)

// Filter narrows event queries. Zero-valued fields are ignored. Start and
// End are inclusive bounds on the event timestamp.
type Filter struct {
	Start         *time.Time
	End           *time.Time
	ComponentName string
	Variant       string
	Action        models.Action
}

// Matches reports whether an event satisfies every set filter field.
func (f Filter) Matches(ev *models.TrackingEvent) bool {
	if f.Start != nil && ev.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && ev.Timestamp.After(*f.End) {
		return false
	}
	if f.ComponentName != "" && ev.ComponentName != f.ComponentName {
		return false
	}
	if f.Variant != "" && ev.Variant != f.Variant {
		return false
	}
	if f.Action != "" && ev.Action != f.Action {
		return false
	}
	return true
}

// EventStore is the append-only collection of tracking events. Events are
// never updated or deleted through this interface.
//
// Query returns events ordered by timestamp descending. A limit <= 0
// means no cap; offset skips that many newest rows (for pagination).
type EventStore interface {
	Insert(ctx context.Context, ev *models.TrackingEvent) error
	Query(ctx context.Context, f Filter, limit, offset int) ([]*models.TrackingEvent, error)
	Count(ctx context.Context, f Filter) (int64, error)
	Close() error
}
