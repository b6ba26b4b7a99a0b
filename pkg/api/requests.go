package api

// CreateQueueRequest is the POST /api/queue/create body.
type CreateQueueRequest struct {
	EventName    string `json:"eventName"`
	MaxGuests    int    `json:"maxGuests"`
	Location     string `json:"location"`
	ContactInfo  string `json:"contactInfo"`
	OpenTime     string `json:"openTime"`
	CloseTime    string `json:"closeTime"`
	RequiresAuth bool   `json:"requiresAuth"`
	CaptchaToken string `json:"captchaToken"`
}

// JoinQueueRequest is the POST /api/queue/{code}/join body. Size is a
// pointer so an omitted field defaults to 1 while an explicit 0 is
// rejected.
type JoinQueueRequest struct {
	Name         string `json:"name"`
	Size         *int   `json:"size"`
	CaptchaToken string `json:"captchaToken"`
}

// PartyActionRequest identifies the acting party for guest actions.
type PartyActionRequest struct {
	PartyID string `json:"partyId"`
}

// AdvanceRequest is the POST /api/queue/{code}/advance body. Both fields
// are optional.
type AdvanceRequest struct {
	ServedParty string `json:"servedParty"`
	NextParty   string `json:"nextParty"`
}

// KickRequest is the POST /api/queue/{code}/kick body.
type KickRequest struct {
	PartyID string `json:"partyId"`
}

// ExchangeRequest is the POST /api/auth/exchange body.
type ExchangeRequest struct {
	Token string `json:"token"`
}

// SubscribeRequest is the POST /api/push/subscribe body: a standard
// PushSubscription JSON plus the party binding.
type SubscribeRequest struct {
	Code     string `json:"code"`
	PartyID  string `json:"partyId"`
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// LogLevelRequest is the PUT /api/admin/log-level body.
type LogLevelRequest struct {
	Level string `json:"level"`
}
