package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/uitrack/uitrack/internal/models"
)

// ClickHouseEventStore implements EventStore on ClickHouse. The flat
// filterable columns are first-class; the nested bags travel as JSON
// strings in the payload columns.
type ClickHouseEventStore struct {
	conn driver.Conn
}

// NewClickHouseEventStore creates a ClickHouse-backed event store.
func NewClickHouseEventStore(conn driver.Conn) *ClickHouseEventStore {
	return &ClickHouseEventStore{conn: conn}
}

// Insert appends one tracking event.
func (s *ClickHouseEventStore) Insert(ctx context.Context, ev *models.TrackingEvent) error {
	if ev == nil {
		return nil
	}

	metadata, performance, location, err := encodeBags(ev)
	if err != nil {
		return err
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO tracking_events
			(id, component_name, variant, action, timestamp, session_id, user_id,
			 metadata, performance, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.ComponentName, ev.Variant, string(ev.Action), ev.Timestamp,
		ev.SessionID, ev.UserID, metadata, performance, location, ev.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save tracking event: %w", err)
	}
	return nil
}

// InsertBatch appends many events in a single prepared batch. Used by
// seeding and backfill tooling; the request path inserts one at a time.
func (s *ClickHouseEventStore) InsertBatch(ctx context.Context, events []*models.TrackingEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO tracking_events
			(id, component_name, variant, action, timestamp, session_id, user_id,
			 metadata, performance, location, created_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, ev := range events {
		metadata, performance, location, err := encodeBags(ev)
		if err != nil {
			return err
		}
		if err := batch.Append(ev.ID, ev.ComponentName, ev.Variant, string(ev.Action),
			ev.Timestamp, ev.SessionID, ev.UserID,
			metadata, performance, location, ev.CreatedAt); err != nil {
			return err
		}
	}
	return batch.Send()
}

// Query returns matching events ordered by timestamp descending.
func (s *ClickHouseEventStore) Query(ctx context.Context, f Filter, limit, offset int) ([]*models.TrackingEvent, error) {
	where, args := buildCHWhere(f)

	sql := `
		SELECT id, component_name, variant, action, timestamp, session_id, user_id,
		       metadata, performance, location, created_at
		FROM tracking_events` + where + `
		ORDER BY timestamp DESC`
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", limit)
		if offset > 0 {
			sql += fmt.Sprintf(" OFFSET %d", offset)
		}
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking events: %w", err)
	}
	defer rows.Close()

	var events []*models.TrackingEvent
	for rows.Next() {
		var ev models.TrackingEvent
		var action, metadata, performance, location string
		var ts, created time.Time

		if err := rows.Scan(&ev.ID, &ev.ComponentName, &ev.Variant, &action,
			&ts, &ev.SessionID, &ev.UserID,
			&metadata, &performance, &location, &created); err != nil {
			return nil, err
		}

		ev.Action = models.Action(action)
		ev.Timestamp = ts
		ev.CreatedAt = created
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", ev.ID, err)
			}
		}
		if performance != "" {
			if err := json.Unmarshal([]byte(performance), &ev.Performance); err != nil {
				return nil, fmt.Errorf("failed to decode performance for %s: %w", ev.ID, err)
			}
		}
		if location != "" {
			if err := json.Unmarshal([]byte(location), &ev.Location); err != nil {
				return nil, fmt.Errorf("failed to decode location for %s: %w", ev.ID, err)
			}
		}

		events = append(events, &ev)
	}
	return events, rows.Err()
}

// Count returns the number of events matching the filter.
func (s *ClickHouseEventStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := buildCHWhere(f)

	var count uint64
	err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM tracking_events"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tracking events: %w", err)
	}
	return int64(count), nil
}

// Close closes the underlying connection.
func (s *ClickHouseEventStore) Close() error {
	return s.conn.Close()
}

func encodeBags(ev *models.TrackingEvent) (string, string, string, error) {
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	performance, err := json.Marshal(ev.Performance)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode performance: %w", err)
	}
	location, err := json.Marshal(ev.Location)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode location: %w", err)
	}
	return string(metadata), string(performance), string(location), nil
}

func buildCHWhere(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.Start != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, *f.End)
	}
	if f.ComponentName != "" {
		conds = append(conds, "component_name = ?")
		args = append(args, f.ComponentName)
	}
	if f.Variant != "" {
		conds = append(conds, "variant = ?")
		args = append(args, f.Variant)
	}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(f.Action))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
