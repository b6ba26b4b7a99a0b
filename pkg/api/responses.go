package api

import (
	"github.com/waitroomhq/waitroom/pkg/coordinator"
	"github.com/waitroomhq/waitroom/pkg/models"
)

// CreateQueueResponse is the POST /api/queue/create response. The host
// token is returned in the body as well as the cookie so native clients
// can store it.
type CreateQueueResponse struct {
	Code          string `json:"code"`
	SessionID     string `json:"sessionId"`
	JoinURL       string `json:"joinUrl"`
	WsURL         string `json:"wsUrl"`
	HostAuthToken string `json:"hostAuthToken"`
	EventName     string `json:"eventName"`
	MaxGuests     int    `json:"maxGuests"`
	RequiresAuth  bool   `json:"requiresAuth"`
}

// JoinQueueResponse is the POST /api/queue/{code}/join response.
type JoinQueueResponse struct {
	PartyID         string `json:"partyId"`
	Position        int    `json:"position"`
	EstimatedWaitMs int64  `json:"estimatedWaitMs"`
	SessionID       string `json:"sessionId"`
	Code            string `json:"code"`
}

// PartyStateResponse is the GET /api/queue/{code}/party/{id} response.
type PartyStateResponse struct {
	Party    *models.Party `json:"party"`
	Position int           `json:"position,omitempty"`
}

// CloseQueueResponse returns the host's end-of-night stats.
type CloseQueueResponse struct {
	Code  string                  `json:"code"`
	Stats *coordinator.CloseStats `json:"stats"`
}

// ExchangeResponse is the POST /api/auth/exchange response. Field names
// follow the session handoff contract.
type ExchangeResponse struct {
	SessionToken string       `json:"session_token"`
	User         *models.User `json:"user"`
}

// VAPIDResponse carries the public application server key.
type VAPIDResponse struct {
	PublicKey string `json:"publicKey"`
}

// LogLevelResponse reports the active log level.
type LogLevelResponse struct {
	Level string `json:"level"`
}
