// Package events defines the analytics event vocabulary, the fail-open
// event recorder, and the notification event type flowing from the queue
// coordinator to the push dispatcher.
package events

// Queue lifecycle event types emitted by the coordinator.
const (
	TypeQueueCreated = "QUEUE_CREATED"
	TypeQueueClosed  = "QUEUE_CLOSED"
	TypeMemberJoined = "QUEUE_MEMBER_JOINED"
	TypeMemberLeft   = "QUEUE_MEMBER_LEFT"
	TypeMemberCalled = "QUEUE_MEMBER_CALLED"
	TypeMemberServed = "QUEUE_MEMBER_SERVED"
	TypeMemberNoShow = "QUEUE_MEMBER_NO_SHOW"
	TypeMemberKicked = "QUEUE_MEMBER_KICKED"
)

// Push delivery outcome event types recorded by the dispatcher. push_sent
// rows double as the at-most-once dedup ledger.
const (
	TypePushSent   = "push_sent"
	TypePushFailed = "push_failed"
	TypePushPruned = "push_pruned"
)

// Join-funnel marker event types recorded by the HTTP surface.
const (
	TypeQRScanned       = "qr_scanned"
	TypeJoinStarted     = "join_started"
	TypeJoinCompleted   = "join_completed"
	TypeAbandonAfterETA = "abandon_after_eta"
)

// Auth marker event types.
const (
	TypeUserLogin        = "user_login"
	TypeSessionExchanged = "session_exchanged"
)

// NotificationKind names a push notification category. Each (queue, party,
// kind) pair is delivered at most once, except KindTest.
type NotificationKind string

const (
	KindJoinConfirm NotificationKind = "join_confirm"
	KindCalled      NotificationKind = "called"
	KindPos2        NotificationKind = "pos_2"
	KindPos5        NotificationKind = "pos_5"
	KindTest        NotificationKind = "test"
)

// Notification is one push request produced by the coordinator (or the
// subscribe handler) and consumed by the dispatcher.
type Notification struct {
	SessionID string
	PartyID   string
	Kind      NotificationKind
	Title     string
	Body      string
	URL       string

	// NoDedup skips the push_sent ledger check; used for test sends.
	NoDedup bool
}
