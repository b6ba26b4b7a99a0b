package models

import "time"

// PartyView is the subscriber-visible projection of a party. Position is
// 1-based within the waiting order and omitted for non-waiting parties.
type PartyView struct {
	ID              string      `json:"id"`
	Name            string      `json:"name,omitempty"`
	Size            int         `json:"size"`
	Status          PartyStatus `json:"status"`
	Nearby          bool        `json:"nearby"`
	Position        int         `json:"position,omitempty"`
	EstimatedWaitMs int64       `json:"estimatedWaitMs,omitempty"`
	JoinedAt        time.Time   `json:"joinedAt"`
	CalledAt        *time.Time  `json:"calledAt,omitempty"`
}

// Snapshot is the versioned projection of a queue broadcast after every
// applied mutation or timer fire. Version increases by one per emit and
// doubles as the HTTP ETag and the subscriber resume token.
type Snapshot struct {
	Version         uint64      `json:"version"`
	SessionID       string      `json:"sessionId"`
	ShortCode       string      `json:"shortCode"`
	Status          QueueStatus `json:"status"`
	EventName       string      `json:"eventName"`
	MaxGuests       int         `json:"maxGuests"`
	Location        string      `json:"location,omitempty"`
	ContactInfo     string      `json:"contactInfo,omitempty"`
	OpenTime        string      `json:"openTime,omitempty"`
	CloseTime       string      `json:"closeTime,omitempty"`
	RequiresAuth    bool        `json:"requiresAuth"`
	NowServing      *PartyView  `json:"nowServing"`
	CallDeadline    *time.Time  `json:"callDeadline,omitempty"`
	Waiting         []PartyView `json:"waiting"`
	WaitingCount    int         `json:"waitingCount"`
	EstimatedWaitMs int64       `json:"estimatedWaitMs"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// PartyByID returns the view of one party from the snapshot, checking
// nowServing and the waiting list. Nil when absent.
func (s *Snapshot) PartyByID(id string) *PartyView {
	if s.NowServing != nil && s.NowServing.ID == id {
		return s.NowServing
	}
	for i := range s.Waiting {
		if s.Waiting[i].ID == id {
			return &s.Waiting[i]
		}
	}
	return nil
}
