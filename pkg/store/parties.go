package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/waitroomhq/waitroom/pkg/models"
)

const partyColumns = `id, session_id, user_id, name, size, status, joined_at, nearby,
	called_at, completed_at, estimated_wait_ms, position_at_leave, wait_ms_at_leave`

// InsertParty persists a fresh waiting party.
func (s *Store) InsertParty(ctx context.Context, p *models.Party) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO parties (id, session_id, user_id, name, size, status, joined_at, nearby, estimated_wait_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.SessionID, p.UserID, nullString(p.Name), p.Size, p.Status, p.JoinedAt, p.Nearby, p.EstimatedWaitMs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert party: %w", err)
	}
	return nil
}

// GetParty loads one party scoped to its queue.
func (s *Store) GetParty(ctx context.Context, sessionID, partyID string) (*models.Party, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE id = $1 AND session_id = $2`,
		partyID, sessionID)
	return scanParty(row)
}

// ListParties returns every party row for a queue in join order. A
// coordinator cold start replays this to rebuild its in-memory state.
func (s *Store) ListParties(ctx context.Context, sessionID string) ([]*models.Party, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE session_id = $1 ORDER BY joined_at, id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parties: %w", err)
	}
	defer rows.Close()

	var out []*models.Party
	for rows.Next() {
		p, err := scanPartyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListRecentServed returns up to limit served parties, oldest first, so the
// caller can replay them into the wait estimator in completion order.
func (s *Store) ListRecentServed(ctx context.Context, sessionID string, limit int) ([]*models.Party, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+partyColumns+` FROM (
			SELECT `+partyColumns+` FROM parties
			WHERE session_id = $1 AND status = 'served' AND completed_at IS NOT NULL
			ORDER BY completed_at DESC
			LIMIT $2
		 ) recent ORDER BY completed_at ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list served parties: %w", err)
	}
	defer rows.Close()

	var out []*models.Party
	for rows.Next() {
		p, err := scanPartyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountLiveParties counts parties occupying capacity (waiting or called).
func (s *Store) CountLiveParties(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM parties WHERE session_id = $1 AND status IN ('waiting', 'called')`,
		sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count live parties: %w", err)
	}
	return n, nil
}

// HasLivePartyForUser reports whether the user already has a waiting or
// called party in this queue.
func (s *Store) HasLivePartyForUser(ctx context.Context, sessionID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM parties
			WHERE session_id = $1 AND user_id = $2 AND status IN ('waiting', 'called')
		 )`, sessionID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check live party: %w", err)
	}
	return exists, nil
}

// MarkPartyCalled transitions waiting→called and stamps called_at. The
// status guard makes the update a no-op when the party moved concurrently;
// that surfaces as ErrNotFound.
func (s *Store) MarkPartyCalled(ctx context.Context, sessionID, partyID string, calledAt time.Time) error {
	return s.transition(ctx,
		`UPDATE parties SET status = 'called', called_at = $3
		 WHERE id = $1 AND session_id = $2 AND status = 'waiting'
		 RETURNING id`,
		partyID, sessionID, calledAt)
}

// MarkPartyServed transitions called→served.
func (s *Store) MarkPartyServed(ctx context.Context, sessionID, partyID string, completedAt time.Time) error {
	return s.transition(ctx,
		`UPDATE parties SET status = 'served', completed_at = $3
		 WHERE id = $1 AND session_id = $2 AND status = 'called'
		 RETURNING id`,
		partyID, sessionID, completedAt)
}

// MarkPartyNoShow transitions called→no_show when the call window expires.
func (s *Store) MarkPartyNoShow(ctx context.Context, sessionID, partyID string, completedAt time.Time) error {
	return s.transition(ctx,
		`UPDATE parties SET status = 'no_show', completed_at = $3
		 WHERE id = $1 AND session_id = $2 AND status = 'called'
		 RETURNING id`,
		partyID, sessionID, completedAt)
}

// MarkPartyLeft transitions a live party to left, recording where it stood
// and how long it had waited.
func (s *Store) MarkPartyLeft(ctx context.Context, sessionID, partyID string, completedAt time.Time, positionAtLeave int, waitMs int64) error {
	return s.transition(ctx,
		`UPDATE parties SET status = 'left', completed_at = $3, position_at_leave = $4, wait_ms_at_leave = $5
		 WHERE id = $1 AND session_id = $2 AND status IN ('waiting', 'called')
		 RETURNING id`,
		partyID, sessionID, completedAt, positionAtLeave, waitMs)
}

// MarkPartyKicked transitions a live party to kicked.
func (s *Store) MarkPartyKicked(ctx context.Context, sessionID, partyID string, completedAt time.Time) error {
	return s.transition(ctx,
		`UPDATE parties SET status = 'kicked', completed_at = $3
		 WHERE id = $1 AND session_id = $2 AND status IN ('waiting', 'called')
		 RETURNING id`,
		partyID, sessionID, completedAt)
}

// SetPartyNearby flags a live party as nearby. Repeats are harmless.
func (s *Store) SetPartyNearby(ctx context.Context, sessionID, partyID string) error {
	return s.transition(ctx,
		`UPDATE parties SET nearby = TRUE
		 WHERE id = $1 AND session_id = $2 AND status IN ('waiting', 'called')
		 RETURNING id`,
		partyID, sessionID)
}

// transition runs a guarded single-row update; zero rows is ErrNotFound.
func (s *Store) transition(ctx context.Context, query string, args ...any) error {
	var id string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to transition party: %w", err)
	}
	return nil
}

func scanParty(row *sql.Row) (*models.Party, error) {
	var p models.Party
	var userID, name sql.NullString
	var calledAt, completedAt sql.NullTime
	var estimatedWaitMs, waitMsAtLeave sql.NullInt64
	var positionAtLeave sql.NullInt32
	err := row.Scan(
		&p.ID, &p.SessionID, &userID, &name, &p.Size, &p.Status, &p.JoinedAt, &p.Nearby,
		&calledAt, &completedAt, &estimatedWaitMs, &positionAtLeave, &waitMsAtLeave,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan party: %w", err)
	}
	applyPartyNullables(&p, userID, name, calledAt, completedAt, estimatedWaitMs, positionAtLeave, waitMsAtLeave)
	return &p, nil
}

func scanPartyRows(rows *sql.Rows) (*models.Party, error) {
	var p models.Party
	var userID, name sql.NullString
	var calledAt, completedAt sql.NullTime
	var estimatedWaitMs, waitMsAtLeave sql.NullInt64
	var positionAtLeave sql.NullInt32
	err := rows.Scan(
		&p.ID, &p.SessionID, &userID, &name, &p.Size, &p.Status, &p.JoinedAt, &p.Nearby,
		&calledAt, &completedAt, &estimatedWaitMs, &positionAtLeave, &waitMsAtLeave,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan party: %w", err)
	}
	applyPartyNullables(&p, userID, name, calledAt, completedAt, estimatedWaitMs, positionAtLeave, waitMsAtLeave)
	return &p, nil
}

func applyPartyNullables(p *models.Party, userID, name sql.NullString, calledAt, completedAt sql.NullTime, estimatedWaitMs sql.NullInt64, positionAtLeave sql.NullInt32, waitMsAtLeave sql.NullInt64) {
	if userID.Valid {
		p.UserID = &userID.String
	}
	p.Name = name.String
	if calledAt.Valid {
		t := calledAt.Time
		p.CalledAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	if estimatedWaitMs.Valid {
		v := estimatedWaitMs.Int64
		p.EstimatedWaitMs = &v
	}
	if positionAtLeave.Valid {
		v := int(positionAtLeave.Int32)
		p.PositionAtLeave = &v
	}
	if waitMsAtLeave.Valid {
		v := waitMsAtLeave.Int64
		p.WaitMsAtLeave = &v
	}
}
