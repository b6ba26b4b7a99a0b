package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/waitroomhq/waitroom/pkg/config"
	"github.com/waitroomhq/waitroom/pkg/models"
	"github.com/waitroomhq/waitroom/pkg/store"
)

var (
	// ErrUnknownProvider is returned for providers outside {github, google}.
	ErrUnknownProvider = errors.New("unknown oauth provider")

	// ErrInvalidState is returned when a callback carries an unknown,
	// expired, or already-consumed state.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrRedirectNotAllowed is returned when a login requests a redirect
	// URI outside the allow-list.
	ErrRedirectNotAllowed = errors.New("redirect uri not allowed")
)

// Profile is the provider-reported identity after a successful exchange.
type Profile struct {
	ProviderID    string
	Email         *string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
}

// Provider wraps one upstream identity provider.
type Provider struct {
	Name   string
	Config *oauth2.Config

	// apiBase points profile fetches at the provider's API; tests swap in
	// an httptest server.
	apiBase string
}

// Flow drives the OAuth dance: state allocation, callback consumption,
// profile fetch, and account upsert/linking.
type Flow struct {
	store     *store.Store
	cfg       config.AuthConfig
	providers map[string]*Provider
}

// NewFlow builds the provider set. callbackBase is this server's public
// URL; provider callbacks land at {callbackBase}/api/auth/{provider}/callback.
func NewFlow(st *store.Store, cfg config.AuthConfig, callbackBase string) *Flow {
	providers := map[string]*Provider{
		models.ProviderGitHub: {
			Name: models.ProviderGitHub,
			Config: &oauth2.Config{
				ClientID:     cfg.GitHubClientID,
				ClientSecret: cfg.GitHubClientSecret,
				Endpoint:     github.Endpoint,
				RedirectURL:  callbackBase + "/api/auth/github/callback",
				Scopes:       []string{"read:user", "user:email"},
			},
			apiBase: "https://api.github.com",
		},
		models.ProviderGoogle: {
			Name: models.ProviderGoogle,
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     google.Endpoint,
				RedirectURL:  callbackBase + "/api/auth/google/callback",
				Scopes:       []string{"openid", "email", "profile"},
			},
			apiBase: "https://www.googleapis.com",
		},
	}
	return &Flow{store: st, cfg: cfg, providers: providers}
}

// Provider returns the named provider.
func (f *Flow) Provider(name string) (*Provider, error) {
	p, ok := f.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Begin allocates a one-shot state row and returns the provider
// authorization URL to redirect the client to.
func (f *Flow) Begin(ctx context.Context, providerName, platform, redirectURI, returnTo string) (string, error) {
	p, err := f.Provider(providerName)
	if err != nil {
		return "", err
	}
	if redirectURI != "" && !RedirectURIAllowed(redirectURI, f.cfg.AllowedRedirects) {
		return "", ErrRedirectNotAllowed
	}
	if !ReturnToAllowed(returnTo) {
		return "", ErrRedirectNotAllowed
	}

	state, err := NewState()
	if err != nil {
		return "", err
	}
	row := &models.OAuthState{
		State:       state,
		Provider:    providerName,
		Platform:    platform,
		RedirectURI: redirectURI,
		ReturnTo:    returnTo,
		ExpiresAt:   time.Now().Add(f.cfg.StateTTL),
	}
	if err := f.store.InsertOAuthState(ctx, row); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return p.Config.AuthCodeURL(state), nil
}

// Callback consumes the state, exchanges the code, fetches the profile,
// and upserts the account. Returns the user and the consumed state row so
// the handler can honor its platform/redirect instructions.
func (f *Flow) Callback(ctx context.Context, providerName, code, state string) (*models.User, *models.OAuthState, error) {
	p, err := f.Provider(providerName)
	if err != nil {
		return nil, nil, err
	}

	row, err := f.store.ConsumeOAuthState(ctx, state)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrInvalidState
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	if row.Provider != providerName {
		return nil, nil, ErrInvalidState
	}

	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	profile, err := p.fetchProfile(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s profile: %w", providerName, err)
	}

	user, err := f.upsertUser(ctx, providerName, profile)
	if err != nil {
		return nil, nil, err
	}
	return user, row, nil
}

// upsertUser finds or creates the account for a provider identity. A new
// provider identity whose verified email matches an existing account links
// to it instead of creating a duplicate.
func (f *Flow) upsertUser(ctx context.Context, provider string, profile *Profile) (*models.User, error) {
	u, err := f.store.GetUserByProviderID(ctx, provider, profile.ProviderID)
	if err == nil {
		if err := f.store.UpdateUserProfile(ctx, u.ID, profile.DisplayName, profile.AvatarURL, profile.Email, profile.EmailVerified); err != nil {
			return nil, err
		}
		return f.store.GetUser(ctx, u.ID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if profile.EmailVerified && profile.Email != nil {
		existing, err := f.store.GetUserByVerifiedEmail(ctx, *profile.Email)
		if err == nil {
			if err := f.store.LinkProvider(ctx, existing.ID, provider, profile.ProviderID); err != nil {
				return nil, err
			}
			if err := f.store.UpdateUserProfile(ctx, existing.ID, profile.DisplayName, profile.AvatarURL, profile.Email, profile.EmailVerified); err != nil {
				return nil, err
			}
			return f.store.GetUser(ctx, existing.ID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now()
	u = &models.User{
		ID:            uuid.New().String(),
		Email:         profile.Email,
		EmailVerified: profile.EmailVerified,
		DisplayName:   profile.DisplayName,
		AvatarURL:     profile.AvatarURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch provider {
	case models.ProviderGitHub:
		u.GitHubID = &profile.ProviderID
	case models.ProviderGoogle:
		u.GoogleID = &profile.ProviderID
	}
	if err := f.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// fetchProfile loads the provider profile with a short bounded retry; the
// GET is idempotent, unlike everything else in this flow.
func (p *Provider) fetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	client := p.Config.Client(ctx, token)
	client.Timeout = 10 * time.Second

	var profile *Profile
	op := func() error {
		var err error
		switch p.Name {
		case models.ProviderGitHub:
			profile, err = fetchGitHubProfile(ctx, client, p.apiBase)
		case models.ProviderGoogle:
			profile, err = fetchGoogleProfile(ctx, client, p.apiBase)
		default:
			return backoff.Permanent(ErrUnknownProvider)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)); err != nil {
		return nil, err
	}
	return profile, nil
}

func fetchGitHubProfile(ctx context.Context, client *http.Client, apiBase string) (*Profile, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, apiBase+"/user", &user); err != nil {
		return nil, err
	}

	profile := &Profile{
		ProviderID:  strconv.FormatInt(user.ID, 10),
		DisplayName: user.Name,
		AvatarURL:   user.AvatarURL,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = user.Login
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, apiBase+"/user/emails", &emails); err != nil {
		return nil, err
	}
	for _, e := range emails {
		if e.Verified && (e.Primary || profile.Email == nil) {
			email := e.Email
			profile.Email = &email
			profile.EmailVerified = true
		}
	}
	return profile, nil
}

func fetchGoogleProfile(ctx context.Context, client *http.Client, apiBase string) (*Profile, error) {
	var info struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, client, apiBase+"/oauth2/v2/userinfo", &info); err != nil {
		return nil, err
	}

	profile := &Profile{
		ProviderID:    info.ID,
		DisplayName:   info.Name,
		AvatarURL:     info.Picture,
		EmailVerified: info.VerifiedEmail,
	}
	if info.Email != "" {
		profile.Email = &info.Email
	}
	return profile, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
