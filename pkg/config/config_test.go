package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestInitialize_DefaultsOnly(t *testing.T) {
	t.Setenv("HOST_AUTH_SECRET", testSecret)

	cfg, err := Initialize(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Queue.CallWindow)
	assert.Equal(t, 1024, cfg.Queue.MailboxSize)
	assert.Equal(t, 5*time.Minute, cfg.Queue.WaitPrior)
	assert.Equal(t, 14*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 10*time.Minute, cfg.Retention.Interval)
}

func TestInitialize_YAMLMergesOverDefaults(t *testing.T) {
	t.Setenv("HOST_AUTH_SECRET", testSecret)

	path := filepath.Join(t.TempDir(), "waitroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
queue:
  call_window: 30s
  mailbox_size: 64
`), 0o644))

	cfg, err := Initialize(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Queue.CallWindow)
	assert.Equal(t, 64, cfg.Queue.MailboxSize)
	// Untouched defaults survive the merge.
	assert.Equal(t, 30*time.Minute, cfg.Queue.IdleTTL)
}

func TestInitialize_EnvOverrides(t *testing.T) {
	t.Setenv("HOST_AUTH_SECRET", testSecret)
	t.Setenv("HTTP_PORT", "3000")
	t.Setenv("ALLOWED_ORIGINS", "https://waitroom.app, https://staging.waitroom.app")
	t.Setenv("ADMIN_EMAILS", "ops@waitroom.app")
	t.Setenv("TURNSTILE_SECRET_KEY", "ts-secret")

	cfg, err := Initialize(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, []string{"https://waitroom.app", "https://staging.waitroom.app"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"ops@waitroom.app"}, cfg.Auth.AdminEmails)
	assert.Equal(t, "ts-secret", cfg.Captcha.TurnstileSecret)
}

func TestInitialize_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing host secret",
			env:     map[string]string{"HOST_AUTH_SECRET": ""},
			wantErr: "HOST_AUTH_SECRET is required",
		},
		{
			name:    "short host secret",
			env:     map[string]string{"HOST_AUTH_SECRET": "short"},
			wantErr: "at least 32 bytes",
		},
		{
			name: "malformed origin",
			env: map[string]string{
				"HOST_AUTH_SECRET": testSecret,
				"ALLOWED_ORIGINS":  "waitroom.app/path",
			},
			wantErr: "invalid allowed origin",
		},
		{
			name:    "zero mailbox",
			env:     map[string]string{"HOST_AUTH_SECRET": testSecret},
			yaml:    "queue:\n  mailbox_size: -1\n",
			wantErr: "mailbox_size",
		},
		{
			name: "vapid keys must pair",
			env: map[string]string{
				"HOST_AUTH_SECRET": testSecret,
				"VAPID_PUBLIC_KEY": "pub-only",
			},
			wantErr: "must be set together",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "waitroom.yaml")
			if tt.yaml != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			}

			_, err := Initialize(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
