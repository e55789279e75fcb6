package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shindakun/resetpassword/internal/models"
)

// DefaultEventLimit caps ListResetEvents when no limit is given
const DefaultEventLimit = 50

// RecordResetEvent inserts an audit row. A missing ID or timestamp is filled in.
func RecordResetEvent(ctx context.Context, db *sql.DB, event *models.ResetEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid reset event: %w", err)
	}

	query := `
		INSERT INTO reset_events (id, email, outcome, message, remote_addr, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		event.ID,
		event.Email,
		string(event.Outcome),
		event.Message,
		event.RemoteAddr,
		event.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reset event: %w", err)
	}

	return nil
}

// ListResetEvents returns the most recent events for email, newest first
func ListResetEvents(ctx context.Context, db *sql.DB, email string, limit int) ([]models.ResetEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	query := `
		SELECT id, email, outcome, message, remote_addr, created_at
		FROM reset_events
		WHERE email = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reset events: %w", err)
	}
	defer rows.Close()

	var events []models.ResetEvent
	for rows.Next() {
		event, err := scanResetEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reset event: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reset events: %w", err)
	}

	return events, nil
}

// LastSuccessfulReset returns the newest successful reset of email, or nil if there is none
func LastSuccessfulReset(ctx context.Context, db *sql.DB, email string) (*models.ResetEvent, error) {
	query := `
		SELECT id, email, outcome, message, remote_addr, created_at
		FROM reset_events
		WHERE email = ? AND outcome = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`

	event, err := scanResetEvent(db.QueryRowContext(ctx, query, email, string(models.ResetOutcomeSuccess)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last successful reset: %w", err)
	}

	return event, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResetEvent(row scanner) (*models.ResetEvent, error) {
	var (
		event     models.ResetEvent
		outcome   string
		createdAt int64
	)
	if err := row.Scan(&event.ID, &event.Email, &outcome, &event.Message, &event.RemoteAddr, &createdAt); err != nil {
		return nil, err
	}
	event.Outcome = models.ResetOutcome(outcome)
	event.CreatedAt = time.UnixMilli(createdAt)
	return &event, nil
}
