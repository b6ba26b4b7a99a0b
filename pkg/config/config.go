// Package config loads and validates service configuration. Tunables come
// from an optional waitroom.yaml merged over built-in defaults; secrets and
// deploy-specific values come from the environment.
package config

import (
	"time"
)

// Config is the fully resolved service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Queue     QueueConfig     `yaml:"queue"`
	Auth      AuthConfig      `yaml:"auth"`
	Push      PushConfig      `yaml:"push"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	Redis     RedisConfig     `yaml:"redis"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port string `yaml:"port"`

	// AppBaseURL is the public URL of the guest-facing app; short-code
	// redirects and OAuth error redirects land there.
	AppBaseURL string `yaml:"app_base_url"`

	// AllowedOrigins is the CORS and websocket origin allow-list.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// QueueConfig holds per-queue coordinator tunables.
type QueueConfig struct {
	// CallWindow is the budget a called party has before auto no_show.
	CallWindow time.Duration `yaml:"call_window"`

	// MailboxSize is the high-water mark of a coordinator's action mailbox;
	// actions beyond it are rejected as busy.
	MailboxSize int `yaml:"mailbox_size"`

	// SubscriberBuffer is the per-subscriber snapshot channel depth; a
	// subscriber that falls this far behind is dropped.
	SubscriberBuffer int `yaml:"subscriber_buffer"`

	// IdleTTL is how long a coordinator with no subscribers and no writes
	// stays resident before being reaped.
	IdleTTL time.Duration `yaml:"idle_ttl"`

	// WaitPrior seeds the ETA estimate while a queue has no serve history.
	WaitPrior time.Duration `yaml:"wait_prior"`

	// WaitFloor and WaitCeiling bound the learned per-party wait estimate.
	WaitFloor   time.Duration `yaml:"wait_floor"`
	WaitCeiling time.Duration `yaml:"wait_ceiling"`

	// DirectoryTTL is the redis short-code mapping TTL.
	DirectoryTTL time.Duration `yaml:"directory_ttl"`
}

// AuthConfig holds the authentication surface settings. Secrets are
// env-only and never appear in YAML.
type AuthConfig struct {
	// HostSecret signs host cookies. Env: HOST_AUTH_SECRET. Required.
	HostSecret string `yaml:"-"`

	// HostCookieMaxAge bounds device-level host authority.
	HostCookieMaxAge time.Duration `yaml:"host_cookie_max_age"`

	// SessionTTL is the user session lifetime.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// StateTTL is the OAuth state lifetime.
	StateTTL time.Duration `yaml:"state_ttl"`

	// ExchangeTTL is the one-shot exchange token lifetime.
	ExchangeTTL time.Duration `yaml:"exchange_ttl"`

	// AdminEmails gates the admin endpoints, matched case-insensitively.
	// Env: ADMIN_EMAILS (CSV).
	AdminEmails []string `yaml:"-"`

	// AllowedRedirects is the exact scheme+host (plus optional path prefix)
	// allow-list for OAuth redirect URIs.
	AllowedRedirects []string `yaml:"allowed_redirects"`

	GitHubClientID     string `yaml:"-"`
	GitHubClientSecret string `yaml:"-"`
	GoogleClientID     string `yaml:"-"`
	GoogleClientSecret string `yaml:"-"`
}

// PushConfig holds the Web Push settings. A missing key pair disables
// delivery; subscriptions are still stored.
type PushConfig struct {
	VAPIDPublicKey  string `yaml:"-"`
	VAPIDPrivateKey string `yaml:"-"`
	VAPIDSubject    string `yaml:"-"`

	// QueueSize is the dispatcher's event buffer; overflow drops events.
	QueueSize int `yaml:"queue_size"`
}

// CaptchaConfig holds the Turnstile verifier settings. An empty secret
// disables verification (development mode).
type CaptchaConfig struct {
	TurnstileSecret string `yaml:"-"`
}

// RedisConfig holds the short-code directory cache settings. An empty
// address disables the cache; lookups fall through to the store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

// RetentionConfig holds the cleanup janitor settings.
type RetentionConfig struct {
	// Interval between janitor sweeps.
	Interval time.Duration `yaml:"interval"`

	// EventTTL prunes analytics events older than this; 0 disables pruning.
	EventTTL time.Duration `yaml:"event_ttl"`
}

// defaults returns the built-in configuration user values merge over.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AppBaseURL:     "http://localhost:5173",
			RequestTimeout: 10 * time.Second,
		},
		Queue: QueueConfig{
			CallWindow:       2 * time.Minute,
			MailboxSize:      1024,
			SubscriberBuffer: 16,
			IdleTTL:          30 * time.Minute,
			WaitPrior:        5 * time.Minute,
			WaitFloor:        30 * time.Second,
			WaitCeiling:      30 * time.Minute,
			DirectoryTTL:     24 * time.Hour,
		},
		Auth: AuthConfig{
			HostCookieMaxAge: 24 * time.Hour,
			SessionTTL:       14 * 24 * time.Hour,
			StateTTL:         10 * time.Minute,
			ExchangeTTL:      2 * time.Minute,
		},
		Push: PushConfig{
			QueueSize: 256,
		},
		Retention: RetentionConfig{
			Interval: 10 * time.Minute,
			EventTTL: 90 * 24 * time.Hour,
		},
	}
}
