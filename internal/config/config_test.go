package config

import (
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/devstats.db", cfg.DBPath)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.GitHubCallbackURL)
	assert.Equal(t, "https://api.github.com", cfg.GitHubAPIURL)
	assert.Equal(t, "https://github.com", cfg.GitHubOAuthURL)
	assert.Equal(t, 10*time.Second, cfg.GitHubTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.TrustedProxies)
	assert.False(t, cfg.GitHubOAuthEnabled())
	assert.False(t, cfg.BillingEnabled())
	assert.False(t, cfg.AIEnabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"PORT":                  "9000",
		"BASE_URL":              "https://devstats.example.com/",
		"JWT_SECRET":            "0123456789abcdef0123",
		"SESSION_TTL":           "12h",
		"GITHUB_CLIENT_ID":      "id",
		"GITHUB_CLIENT_SECRET":  "secret",
		"STRIPE_SECRET_KEY":     "sk_test_x",
		"STRIPE_PRICE_ID":       "price_123",
		"STRIPE_WEBHOOK_SECRET": "whsec_x",
		"GEMINI_API_KEY":        "key",
		"LOG_LEVEL":             "debug",
		"LOG_FORMAT":            "JSON",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "https://devstats.example.com", cfg.BaseURL, "trailing slash trimmed")
	assert.Equal(t, "https://devstats.example.com/auth/github/callback", cfg.GitHubCallbackURL)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "0123456789abcdef0123", cfg.TokenEncryptionKey, "falls back to JWT secret")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.GitHubOAuthEnabled())
	assert.True(t, cfg.BillingEnabled())
	assert.True(t, cfg.AIEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_CollectsAllErrors(t *testing.T) {
	_, err := FromEnv(lookup(map[string]string{
		"PORT":           "eighty",
		"GITHUB_TIMEOUT": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "GITHUB_TIMEOUT")
}

func TestValidate(t *testing.T) {
	base, err := FromEnv(lookup(map[string]string{"JWT_SECRET": "this-is-16-chars"}))
	require.NoError(t, err)
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short secret", func(c *Config) { c.JWTSecret = "short" }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"zero pages", func(c *Config) { c.GitHubMaxPages = 0 }},
		{"unknown timezone", func(c *Config) { c.MetricsTimezone = "Mars/Olympus" }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"billing without webhook secret", func(c *Config) {
			c.StripeSecretKey = "sk_test_x"
			c.StripePriceID = "price_123"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBillingEnabled_NeedsWebhookSecret(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"JWT_SECRET":        "this-is-16-chars",
		"STRIPE_SECRET_KEY": "sk_test_x",
		"STRIPE_PRICE_ID":   "price_123",
	}))
	require.NoError(t, err)

	assert.False(t, cfg.BillingEnabled(), "no webhook secret means no billing")
	assert.ErrorContains(t, cfg.Validate(), "STRIPE_WEBHOOK_SECRET")

	cfg.StripeWebhookSecret = "whsec_x"
	assert.True(t, cfg.BillingEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_TrustedProxies(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"TRUSTED_PROXIES": " 10.0.0.0/8, 127.0.0.1 ,::1",
	}))
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("127.0.0.1/32"),
		netip.MustParsePrefix("::1/128"),
	}, cfg.TrustedProxies)

	_, err = FromEnv(lookup(map[string]string{"TRUSTED_PROXIES": "10.0.0.0/99,proxy.local"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "10.0.0.0/99")
	assert.Contains(t, err.Error(), "proxy.local")
}
