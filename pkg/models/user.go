package models

import "time"

// OAuth provider names accepted by the auth surface.
const (
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

// User is an OAuth-derived account. Provider ids attach github/google
// identities to the stable uuid; a verified email links identities across
// providers.
type User struct {
	ID            string    `json:"id"`
	Email         *string   `json:"email,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	DisplayName   string    `json:"displayName,omitempty"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	GitHubID      *string   `json:"-"`
	GoogleID      *string   `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"-"`
}

// UserSession is a persisted login. Only the SHA-256 hash of the raw token
// crosses into storage; TokenHash is the primary key.
type UserSession struct {
	TokenHash string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// OAuthState is the one-shot row protecting an OAuth callback. Consumption
// is an atomic delete-returning so a state survives exactly one callback.
type OAuthState struct {
	State       string
	Provider    string
	Platform    string
	RedirectURI string
	ReturnTo    string
	ExpiresAt   time.Time
}

// ExchangeToken hands a fresh login across origins or into a native app.
// Hash-stored and single-use; redeeming flips Used under an atomic
// conditional update that returns the owning user.
type ExchangeToken struct {
	TokenHash string
	UserID    string
	Used      bool
	CreatedAt time.Time
	ExpiresAt time.Time
}
