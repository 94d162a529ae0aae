package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watch-party/relay/internal/model"
)

// DefaultListLimit caps ListBySession when the caller passes no limit.
const DefaultListLimit = 100

// EventRepository provides data access for the event journal.
type EventRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db, now: time.Now}
}

// Record encodes env and appends it to the journal of sessionID.
func (r *EventRepository) Record(ctx context.Context, sessionID uuid.UUID, connectionID uint64, env model.Envelope) error {
	data, err := model.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	record := &model.EventRecord{
		SessionID:    sessionID,
		ConnectionID: connectionID,
		Op:           env.Op(),
		Envelope:     data,
		CreatedAt:    r.now(),
	}
	if env.User != nil {
		record.User = *env.User
	}

	return r.Append(ctx, record)
}

// Append inserts record and sets its ID.
func (r *EventRepository) Append(ctx context.Context, record *model.EventRecord) error {
	query := `
		INSERT INTO events (session_id, connection_id, op, user, envelope, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var user sql.NullString
	if record.User != "" {
		user = sql.NullString{String: record.User, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		record.SessionID.String(),
		int64(record.ConnectionID),
		string(record.Op),
		user,
		string(record.Envelope),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event id: %w", err)
	}
	record.ID = id

	return nil
}

// ListBySession returns up to limit of the most recent events of a session,
// oldest first. A non-positive limit means DefaultListLimit.
func (r *EventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*model.EventRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, session_id, connection_id, op, user, envelope, created_at
		FROM (
			SELECT * FROM events
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	records := []*model.EventRecord{}
	for rows.Next() {
		record := &model.EventRecord{}
		var rawSessionID string
		var connectionID int64
		var op string
		var user sql.NullString
		var envelope string

		err := rows.Scan(
			&record.ID,
			&rawSessionID,
			&connectionID,
			&op,
			&user,
			&envelope,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		record.SessionID, err = uuid.Parse(rawSessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse session id: %w", err)
		}
		record.ConnectionID = uint64(connectionID)
		record.Op = model.Op(op)
		record.Envelope = []byte(envelope)
		if user.Valid {
			record.User = user.String
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return records, nil
}

// CountBySession returns the number of journaled events of a session.
func (r *EventRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM events WHERE session_id = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, sessionID.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}

	return count, nil
}

// DeleteBefore removes events older than cutoff and returns how many went.
func (r *EventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM events WHERE created_at < ?`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
