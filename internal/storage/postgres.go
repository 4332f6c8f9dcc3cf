package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uitrack/uitrack/internal/models"
)

// PostgresEventStore implements EventStore on PostgreSQL. The nested
// metadata/performance/location bags are stored as JSONB so events keep
// their document shape; the flat columns carry everything the aggregation
// filters touch, backed by a (component_name, variant, action, timestamp)
// index.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates a PostgreSQL-backed event store.
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

// Insert appends one tracking event.
func (s *PostgresEventStore) Insert(ctx context.Context, ev *models.TrackingEvent) error {
	if ev == nil {
		return nil
	}

	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	performance, err := json.Marshal(ev.Performance)
	if err != nil {
		return fmt.Errorf("failed to encode performance: %w", err)
	}
	location, err := json.Marshal(ev.Location)
	if err != nil {
		return fmt.Errorf("failed to encode location: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tracking_events
			(id, component_name, variant, action, timestamp, session_id, user_id,
			 metadata, performance, location, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.ComponentName, ev.Variant, string(ev.Action), ev.Timestamp,
		nullString(ev.SessionID), nullString(ev.UserID),
		metadata, performance, location, ev.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save tracking event: %w", err)
	}
	return nil
}

// Query returns matching events ordered by timestamp descending.
func (s *PostgresEventStore) Query(ctx context.Context, f Filter, limit, offset int) ([]*models.TrackingEvent, error) {
	where, args := buildWhere(f)

	sql := `
		SELECT id, component_name, variant, action, timestamp, session_id, user_id,
		       metadata, performance, location, created_at
		FROM tracking_events` + where + `
		ORDER BY timestamp DESC`
	if limit > 0 {
		args = append(args, limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking events: %w", err)
	}
	defer rows.Close()

	var events []*models.TrackingEvent
	for rows.Next() {
		var ev models.TrackingEvent
		var action string
		var sessionID, userID *string
		var metadata, performance, location []byte

		if err := rows.Scan(&ev.ID, &ev.ComponentName, &ev.Variant, &action,
			&ev.Timestamp, &sessionID, &userID,
			&metadata, &performance, &location, &ev.CreatedAt); err != nil {
			return nil, err
		}

		ev.Action = models.Action(action)
		if sessionID != nil {
			ev.SessionID = *sessionID
		}
		if userID != nil {
			ev.UserID = *userID
		}
		if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", ev.ID, err)
		}
		if err := json.Unmarshal(performance, &ev.Performance); err != nil {
			return nil, fmt.Errorf("failed to decode performance for %s: %w", ev.ID, err)
		}
		if err := json.Unmarshal(location, &ev.Location); err != nil {
			return nil, fmt.Errorf("failed to decode location for %s: %w", ev.ID, err)
		}

		events = append(events, &ev)
	}
	return events, rows.Err()
}

// Count returns the number of events matching the filter.
func (s *PostgresEventStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := buildWhere(f)

	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tracking_events"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tracking events: %w", err)
	}
	return count, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresEventStore) Close() error {
	return nil
}

func buildWhere(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Start != nil {
		add("timestamp >= $%d", *f.Start)
	}
	if f.End != nil {
		add("timestamp <= $%d", *f.End)
	}
	if f.ComponentName != "" {
		add("component_name = $%d", f.ComponentName)
	}
	if f.Variant != "" {
		add("variant = $%d", f.Variant)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
