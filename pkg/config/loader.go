package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Merge the optional YAML file over them
//  3. Apply environment overrides (secrets are env-only)
//  4. Validate the result
func Initialize(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Info("Configuration initialized",
		"origins", len(cfg.Server.AllowedOrigins),
		"captcha_enabled", cfg.Captcha.TurnstileSecret != "",
		"push_enabled", cfg.Push.VAPIDPrivateKey != "",
		"redis_enabled", cfg.Redis.Addr != "")

	return cfg, nil
}

// load merges the YAML file at path over defaults. A missing file is fine;
// every tunable has a default.
func load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables. Named variables follow spec'd
// deployment contracts; unset variables leave the merged value alone.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "HTTP_PORT")
	setString(&cfg.Server.AppBaseURL, "APP_BASE_URL")
	setCSV(&cfg.Server.AllowedOrigins, "ALLOWED_ORIGINS")

	cfg.Auth.HostSecret = os.Getenv("HOST_AUTH_SECRET")
	setCSV(&cfg.Auth.AdminEmails, "ADMIN_EMAILS")
	setCSV(&cfg.Auth.AllowedRedirects, "ALLOWED_REDIRECTS")
	cfg.Auth.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.Auth.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	cfg.Auth.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.Auth.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")

	cfg.Push.VAPIDPublicKey = os.Getenv("VAPID_PUBLIC_KEY")
	cfg.Push.VAPIDPrivateKey = os.Getenv("VAPID_PRIVATE_KEY")
	cfg.Push.VAPIDSubject = os.Getenv("VAPID_SUBJECT")

	cfg.Captcha.TurnstileSecret = os.Getenv("TURNSTILE_SECRET_KEY")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setCSV(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

// validate fails fast on configuration the service cannot run with.
func validate(cfg *Config) error {
	if cfg.Auth.HostSecret == "" {
		return fmt.Errorf("HOST_AUTH_SECRET is required")
	}
	if len(cfg.Auth.HostSecret) < 32 {
		return fmt.Errorf("HOST_AUTH_SECRET must be at least 32 bytes")
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" || u.Path != "" {
			return fmt.Errorf("invalid allowed origin %q: expected scheme://host", origin)
		}
	}

	if _, err := url.Parse(cfg.Server.AppBaseURL); err != nil {
		return fmt.Errorf("invalid app_base_url: %w", err)
	}

	if cfg.Queue.CallWindow <= 0 {
		return fmt.Errorf("queue.call_window must be positive")
	}
	if cfg.Queue.MailboxSize < 1 {
		return fmt.Errorf("queue.mailbox_size must be at least 1")
	}
	if cfg.Queue.WaitFloor > cfg.Queue.WaitCeiling {
		return fmt.Errorf("queue.wait_floor must not exceed queue.wait_ceiling")
	}

	if (cfg.Push.VAPIDPublicKey == "") != (cfg.Push.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}
