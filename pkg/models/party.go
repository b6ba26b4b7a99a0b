package models

import "time"

// PartyStatus tracks one party through the queue. waiting and called are
// the live states; served, left, no_show and kicked are terminal and a
// party never moves backward out of them.
type PartyStatus string

const (
	PartyStatusWaiting PartyStatus = "waiting"
	PartyStatusCalled  PartyStatus = "called"
	PartyStatusServed  PartyStatus = "served"
	PartyStatusLeft    PartyStatus = "left"
	PartyStatusNoShow  PartyStatus = "no_show"
	PartyStatusKicked  PartyStatus = "kicked"
)

// Live reports whether the party still counts against queue capacity.
func (s PartyStatus) Live() bool {
	return s == PartyStatusWaiting || s == PartyStatusCalled
}

// Terminal reports whether the status admits no further transitions.
func (s PartyStatus) Terminal() bool {
	switch s {
	case PartyStatusServed, PartyStatusLeft, PartyStatusNoShow, PartyStatusKicked:
		return true
	}
	return false
}

// CanTransition reports whether from→to is an allowed status edge. Guests
// may leave from either live state; only a called party can be served or
// time out as no_show; hosts can kick any live party.
func CanTransition(from, to PartyStatus) bool {
	switch from {
	case PartyStatusWaiting:
		return to == PartyStatusCalled || to == PartyStatusLeft || to == PartyStatusKicked
	case PartyStatusCalled:
		return to == PartyStatusServed || to == PartyStatusNoShow ||
			to == PartyStatusLeft || to == PartyStatusKicked
	}
	return false
}

// Party is one join entry (one or more people). UserID is set when the
// joiner was authenticated, which is what already_joined dedup keys on for
// queues that require auth.
type Party struct {
	ID              string      `json:"id"`
	SessionID       string      `json:"sessionId"`
	UserID          *string     `json:"userId,omitempty"`
	Name            string      `json:"name,omitempty"`
	Size            int         `json:"size"`
	Status          PartyStatus `json:"status"`
	JoinedAt        time.Time   `json:"joinedAt"`
	Nearby          bool        `json:"nearby"`
	CalledAt        *time.Time  `json:"calledAt,omitempty"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	EstimatedWaitMs *int64      `json:"estimatedWaitMs,omitempty"`
	PositionAtLeave *int        `json:"positionAtLeave,omitempty"`
	WaitMsAtLeave   *int64      `json:"waitMsAtLeave,omitempty"`
}
