package models

import "time"

// Event is one append-only analytics row. SessionID and PartyID are
// optional scoping; Details is free-form JSON.
type Event struct {
	ID        int64          `json:"id"`
	SessionID *string        `json:"sessionId,omitempty"`
	PartyID   *string        `json:"partyId,omitempty"`
	Type      string         `json:"type"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"ts"`
}
