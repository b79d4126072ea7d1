// pkg/eventstore/eventstore.go

// Package eventstore is an append-only ledger of domain events. Appends run
// inside the caller's transaction, so an event is committed together with the
// state change it describes or not at all.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
)

// Event represents a domain event with full metadata
type Event struct {
	ID            int64           `json:"id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewEvent marshals payload into an event of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{EventType: eventType, EventData: data}, nil
}

// row is the storage shape. JSON columns travel as text so the same scan
// works for JSONB and TEXT.
type row struct {
	ID            int64          `db:"id"`
	AggregateID   uuid.UUID      `db:"aggregate_id"`
	AggregateType string         `db:"aggregate_type"`
	EventType     string         `db:"event_type"`
	EventData     string         `db:"event_data"`
	Metadata      sql.NullString `db:"metadata"`
	Version       int            `db:"version"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r row) event() (Event, error) {
	e := Event{
		ID:            r.ID,
		AggregateID:   r.AggregateID,
		AggregateType: r.AggregateType,
		EventType:     r.EventType,
		EventData:     json.RawMessage(r.EventData),
		Version:       r.Version,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		if err := json.Unmarshal([]byte(r.Metadata.String), &e.Metadata); err != nil {
			return Event{}, fmt.Errorf("decode metadata of event %d: %w", r.ID, err)
		}
	}
	return e, nil
}

const selectColumns = `SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at FROM events`

// EventStore appends and reads events. It holds no connection of its own.
type EventStore struct {
	tracer trace.Tracer
	now    func() time.Time
}

func NewEventStore() *EventStore {
	return &EventStore{
		tracer: otel.Tracer("librarian/eventstore"),
		now:    time.Now,
	}
}

// AppendEvents appends events to an aggregate with optimistic concurrency
// control. expectedVersion is the version the caller last saw; the first event
// is written at expectedVersion+1. q is normally the caller's transaction.
func (es *EventStore) AppendEvents(ctx context.Context, q sqlx.ExtContext, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []Event) error {
	ctx, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	currentVersion, err := es.currentVersion(ctx, q, aggregateID)
	if err != nil {
		return err
	}

	// Optimistic concurrency check
	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	insert := q.Rebind(`
		INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	for i, event := range events {
		version := expectedVersion + i + 1

		var metadata sql.NullString
		if len(event.Metadata) > 0 {
			b, err := json.Marshal(event.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata of event %d: %w", i, err)
			}
			metadata = sql.NullString{String: string(b), Valid: true}
		}

		var eventID int64
		err := q.QueryRowxContext(ctx, insert,
			aggregateID.String(),
			aggregateType,
			event.EventType,
			string(event.EventData),
			metadata,
			version,
			es.now().UTC(),
		).Scan(&eventID)
		if err != nil {
			// A concurrent writer took this version first.
			if isUniqueViolation(err) {
				span.SetAttributes(attribute.Bool("conflict.detected", true))
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", eventID),
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// Record appends one event carrying payload at the aggregate's next version.
// A concurrent writer that got there first yields ErrConcurrencyConflict.
func (es *EventStore) Record(ctx context.Context, q sqlx.ExtContext, aggregateID uuid.UUID, aggregateType, eventType string, payload any) error {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	version, err := es.currentVersion(ctx, q, aggregateID)
	if err != nil {
		return err
	}
	return es.AppendEvents(ctx, q, aggregateID, aggregateType, version, []Event{event})
}

// LoadEvents retrieves all events for an aggregate with optional version range.
// A toVersion of 0 means no upper bound.
func (es *EventStore) LoadEvents(ctx context.Context, q sqlx.ExtContext, aggregateID uuid.UUID, fromVersion, toVersion int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	query := selectColumns + ` WHERE aggregate_id = ? AND version >= ?`
	args := []any{aggregateID.String(), fromVersion}
	if toVersion > 0 {
		query += ` AND version <= ?`
		args = append(args, toVersion)
	}
	query += ` ORDER BY version ASC`

	events, err := es.query(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// GetCurrentVersion returns the latest version for an aggregate, 0 if it has
// no events.
func (es *EventStore) GetCurrentVersion(ctx context.Context, q sqlx.ExtContext, aggregateID uuid.UUID) (int, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.get_version",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()

	version, err := es.currentVersion(ctx, q, aggregateID)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("current.version", version))
	return version, nil
}

// StreamEvents provides a cursor-based event stream for projections
func (es *EventStore) StreamEvents(ctx context.Context, q sqlx.ExtContext, fromID int64, batchSize int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	events, err := es.query(ctx, q, selectColumns+` WHERE id > ? ORDER BY id ASC LIMIT ?`, fromID, batchSize)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}

func (es *EventStore) currentVersion(ctx context.Context, q sqlx.ExtContext, aggregateID uuid.UUID) (int, error) {
	var version int
	err := sqlx.GetContext(ctx, q, &version, q.Rebind(`
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_id = ?
	`), aggregateID.String())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return version, nil
}

func (es *EventStore) query(ctx context.Context, q sqlx.ExtContext, query string, args ...any) ([]Event, error) {
	var rows []row
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		e, err := r.event()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
