package models

import "time"

// PushSubscription is a Web Push endpoint bound to a party in a queue.
// Endpoint is the primary key; re-subscribing upserts the binding.
type PushSubscription struct {
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	SessionID string    `json:"sessionId"`
	PartyID   string    `json:"partyId"`
	CreatedAt time.Time `json:"createdAt"`
}
