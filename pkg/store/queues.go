package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/waitroomhq/waitroom/pkg/models"
)

const queueColumns = `session_id, short_code, status, event_name, max_guests,
	location, contact_info, open_time, close_time, requires_auth, owner_id, created_at`

// CreateQueue inserts a new queue row. Returns ErrAlreadyExists when the
// short code is already taken, which callers treat as a signal to re-roll
// the code and retry.
func (s *Store) CreateQueue(ctx context.Context, q *models.Queue) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, short_code, status, event_name, max_guests,
			location, contact_info, open_time, close_time, requires_auth, owner_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		q.SessionID, q.ShortCode, q.Status, q.EventName, q.MaxGuests,
		nullString(q.Location), nullString(q.ContactInfo),
		nullString(q.OpenTime), nullString(q.CloseTime),
		q.RequiresAuth, q.OwnerID, q.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert queue: %w", err)
	}
	return nil
}

// GetQueue loads a queue by its stable session id.
func (s *Store) GetQueue(ctx context.Context, sessionID string) (*models.Queue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	return scanQueue(row)
}

// GetQueueByCode loads a queue by its canonical short code.
func (s *Store) GetQueueByCode(ctx context.Context, shortCode string) (*models.Queue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM sessions WHERE short_code = $1`, shortCode)
	return scanQueue(row)
}

// CloseQueue flips an active queue to closed. ErrNotFound means the queue is
// missing or was already closed.
func (s *Store) CloseQueue(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'closed' WHERE session_id = $1 AND status = 'active'`,
		sessionID)
	if err != nil {
		return fmt.Errorf("failed to close queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read close result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveQueueSummary is one row of the admin queue listing.
type ActiveQueueSummary struct {
	Queue        models.Queue `json:"queue"`
	WaitingCount int          `json:"waitingCount"`
	CalledCount  int          `json:"calledCount"`
}

// ListActiveQueues returns active queues newest first with live party
// counts, for the ops listing.
func (s *Store) ListActiveQueues(ctx context.Context, limit int) ([]ActiveQueueSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.short_code, s.status, s.event_name, s.max_guests,
			s.location, s.contact_info, s.open_time, s.close_time, s.requires_auth, s.owner_id, s.created_at,
			count(p.id) FILTER (WHERE p.status = 'waiting') AS waiting,
			count(p.id) FILTER (WHERE p.status = 'called') AS called
		 FROM sessions s
		 LEFT JOIN parties p ON p.session_id = s.session_id AND p.status IN ('waiting', 'called')
		 WHERE s.status = 'active'
		 GROUP BY s.session_id
		 ORDER BY s.created_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active queues: %w", err)
	}
	defer rows.Close()

	var out []ActiveQueueSummary
	for rows.Next() {
		var sum ActiveQueueSummary
		var location, contactInfo, openTime, closeTime, ownerID sql.NullString
		if err := rows.Scan(
			&sum.Queue.SessionID, &sum.Queue.ShortCode, &sum.Queue.Status, &sum.Queue.EventName, &sum.Queue.MaxGuests,
			&location, &contactInfo, &openTime, &closeTime, &sum.Queue.RequiresAuth, &ownerID, &sum.Queue.CreatedAt,
			&sum.WaitingCount, &sum.CalledCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan queue summary: %w", err)
		}
		applyQueueNullables(&sum.Queue, location, contactInfo, openTime, closeTime, ownerID)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func scanQueue(row *sql.Row) (*models.Queue, error) {
	var q models.Queue
	var location, contactInfo, openTime, closeTime, ownerID sql.NullString
	err := row.Scan(
		&q.SessionID, &q.ShortCode, &q.Status, &q.EventName, &q.MaxGuests,
		&location, &contactInfo, &openTime, &closeTime, &q.RequiresAuth, &ownerID, &q.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue: %w", err)
	}
	applyQueueNullables(&q, location, contactInfo, openTime, closeTime, ownerID)
	return &q, nil
}

func applyQueueNullables(q *models.Queue, location, contactInfo, openTime, closeTime, ownerID sql.NullString) {
	q.Location = location.String
	q.ContactInfo = contactInfo.String
	q.OpenTime = openTime.String
	q.CloseTime = closeTime.String
	if ownerID.Valid {
		q.OwnerID = &ownerID.String
	}
}
