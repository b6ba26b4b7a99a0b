package store

import (
	"context"
	"fmt"

	"github.com/waitroomhq/waitroom/pkg/models"
)

// UpsertPushSubscription inserts or rebinds a subscription. The endpoint is
// the identity; re-subscribing moves it to the new party and refreshes keys.
func (s *Store) UpsertPushSubscription(ctx context.Context, sub *models.PushSubscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (endpoint, p256dh, auth, session_id, party_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (endpoint) DO UPDATE
		 SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth,
		     session_id = EXCLUDED.session_id, party_id = EXCLUDED.party_id`,
		sub.Endpoint, sub.P256dh, sub.Auth, sub.SessionID, sub.PartyID, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert push subscription: %w", err)
	}
	return nil
}

// ListSubscriptionsForParty returns the endpoints bound to one party.
func (s *Store) ListSubscriptionsForParty(ctx context.Context, sessionID, partyID string) ([]*models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint, p256dh, auth, session_id, party_id, created_at
		 FROM push_subscriptions
		 WHERE session_id = $1 AND party_id = $2`,
		sessionID, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.SessionID, &sub.PartyID, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan push subscription: %w", err)
		}
		out = append(out, &sub)
	}
	return out, rows.Err()
}

// DeletePushSubscription removes a dead endpoint (gateway said 404/410).
func (s *Store) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}
