package models

import (
	"fmt"
	"time"
)

// QueueStatus is the lifecycle state of a queue. The only transition is
// active→closed; closed is terminal and deletion is soft.
type QueueStatus string

const (
	QueueStatusActive QueueStatus = "active"
	QueueStatusClosed QueueStatus = "closed"
)

// Input limits enforced on queue creation and joins.
const (
	MaxEventNameLength = 60
	MaxPartyNameLength = 60
	MinPartySize       = 1
	MaxPartySize       = 20
	MinMaxGuests       = 1
	MaxMaxGuests       = 100
)

// Queue is the durable record of a coordinated waitlist. Rows live in the
// sessions table; SessionID is the stable identity, ShortCode the
// human-facing handle guests scan.
type Queue struct {
	SessionID    string      `json:"sessionId"`
	ShortCode    string      `json:"shortCode"`
	Status       QueueStatus `json:"status"`
	EventName    string      `json:"eventName"`
	MaxGuests    int         `json:"maxGuests"`
	Location     string      `json:"location,omitempty"`
	ContactInfo  string      `json:"contactInfo,omitempty"`
	OpenTime     string      `json:"openTime,omitempty"`
	CloseTime    string      `json:"closeTime,omitempty"`
	RequiresAuth bool        `json:"requiresAuth"`
	OwnerID      *string     `json:"ownerId,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Closed reports whether the queue no longer accepts joins or host mutations.
func (q *Queue) Closed() bool {
	return q.Status == QueueStatusClosed
}

// ValidateClockTime checks an optional HH:MM wall-clock string such as
// openTime/closeTime. Empty is allowed.
func ValidateClockTime(s string) error {
	if s == "" {
		return nil
	}
	// time.Parse alone accepts "9:30"; the zero-padded shape is part of
	// the contract.
	if len(s) != 5 || s[2] != ':' {
		return fmt.Errorf("expected HH:MM, got %q", s)
	}
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("expected HH:MM, got %q", s)
	}
	return nil
}
