package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/waitroomhq/waitroom/pkg/models"
)

// InsertEvent appends one analytics row.
func (s *Store) InsertEvent(ctx context.Context, ev *models.Event) error {
	var details []byte
	if ev.Details != nil {
		var err error
		details, err = json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, party_id, type, details, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.SessionID, ev.PartyID, ev.Type, details, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// HasPushEvent reports whether a push of this kind was already recorded for
// the party. This is the dispatcher's at-most-once dedup check.
func (s *Store) HasPushEvent(ctx context.Context, sessionID, partyID, kind string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM events
			WHERE type = 'push_sent' AND session_id = $1 AND party_id = $2 AND details->>'kind' = $3
		 )`, sessionID, partyID, kind).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check push event: %w", err)
	}
	return exists, nil
}

// CountEventsByType counts a queue's events of one type; test scaffolding
// for the at-most-once properties.
func (s *Store) CountEventsByType(ctx context.Context, sessionID, eventType string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM events WHERE session_id = $1 AND type = $2`,
		sessionID, eventType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// DeleteEventsBefore prunes analytics rows older than the cutoff.
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read prune result: %w", err)
	}
	return n, nil
}
