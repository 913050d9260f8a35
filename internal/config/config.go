// Package config loads the server configuration from the environment.
//
// Values come from real environment variables first; a .env file in the
// working directory (if present) fills in anything unset. Every key has a
// default that works for local development except the secrets, which are
// checked by Validate.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the server. One struct, loaded once in main
// and handed to server.New.
type Config struct {
	Port    int
	DBPath  string
	BaseURL string // public URL of the app, used for redirects and Stripe return URLs

	JWTSecret          string
	SessionTTL         time.Duration
	TokenEncryptionKey string // seals stored GitHub tokens; falls back to JWTSecret

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	GitHubOAuthURL     string // host of the authorize/token endpoints
	GitHubAPIURL       string
	GitHubTimeout      time.Duration // per-attempt timeout for GitHub API calls
	GitHubMaxPages     int           // commit history pages per repository
	MetricsTimezone    string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string

	GeminiAPIKey string
	GeminiModel  string

	ContactRatePerMinute int
	TrustedProxies       []netip.Prefix // peers whose X-Forwarded-For / X-Real-IP is believed

	LogLevel  slog.Level
	LogFormat string // "text" (tint) or "json"
}

// Load reads .env (ignored when missing) and then the environment.
func Load() (Config, error) {
	// godotenv never overrides variables that are already set.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Tests pass a map lookup
// instead of touching the process environment.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	cfg := Config{
		Port:    p.int("PORT", 8080),
		DBPath:  p.str("DB_PATH", "data/devstats.db"),
		BaseURL: strings.TrimRight(p.str("BASE_URL", ""), "/"),

		JWTSecret:          p.str("JWT_SECRET", ""),
		SessionTTL:         p.duration("SESSION_TTL", 7*24*time.Hour),
		TokenEncryptionKey: p.str("TOKEN_ENCRYPTION_KEY", ""),

		GitHubClientID:     p.str("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: p.str("GITHUB_CLIENT_SECRET", ""),
		GitHubCallbackURL:  p.str("GITHUB_CALLBACK_URL", ""),
		GitHubOAuthURL:     strings.TrimRight(p.str("GITHUB_OAUTH_URL", "https://github.com"), "/"),
		GitHubAPIURL:       strings.TrimRight(p.str("GITHUB_API_URL", "https://api.github.com"), "/"),
		GitHubTimeout:      p.duration("GITHUB_TIMEOUT", 10*time.Second),
		GitHubMaxPages:     p.int("GITHUB_MAX_COMMIT_PAGES", 10),
		MetricsTimezone:    p.str("METRICS_TIMEZONE", "UTC"),

		StripeSecretKey:     p.str("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: p.str("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceID:       p.str("STRIPE_PRICE_ID", ""),

		GeminiAPIKey: p.str("GEMINI_API_KEY", ""),
		GeminiModel:  p.str("GEMINI_MODEL", "gemini-2.5-flash"),

		ContactRatePerMinute: p.int("CONTACT_RATE_PER_MINUTE", 5),
		TrustedProxies:       p.prefixes("TRUSTED_PROXIES"),

		LogLevel:  p.level("LOG_LEVEL", slog.LevelInfo),
		LogFormat: strings.ToLower(p.str("LOG_FORMAT", "text")),
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = cfg.BaseURL + "/auth/github/callback"
	}
	if cfg.TokenEncryptionKey == "" {
		cfg.TokenEncryptionKey = cfg.JWTSecret
	}

	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	return cfg, nil
}

// Validate reports settings the server cannot start without. Optional
// integrations (GitHub OAuth, Stripe, Gemini) are checked by their
// Enabled helpers instead and simply switch off when unset.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("config: JWT_SECRET must be at least 16 characters"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	if c.GitHubMaxPages < 1 {
		errs = append(errs, errors.New("config: GITHUB_MAX_COMMIT_PAGES must be at least 1"))
	}
	if _, err := time.LoadLocation(c.MetricsTimezone); err != nil {
		errs = append(errs, fmt.Errorf("config: METRICS_TIMEZONE: %w", err))
	}
	if (c.StripeSecretKey != "" || c.StripePriceID != "") && c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("config: STRIPE_WEBHOOK_SECRET is required when billing is configured"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func (c Config) GitHubOAuthEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// BillingEnabled needs the webhook secret too: without it no webhook can be
// trusted, so billing stays off rather than half on.
func (c Config) BillingEnabled() bool {
	return c.StripeSecretKey != "" && c.StripePriceID != "" && c.StripeWebhookSecret != ""
}

func (c Config) AIEnabled() bool {
	return c.GeminiAPIKey != ""
}

// parser collects conversion errors so one bad value doesn't hide the next.
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: invalid duration %q", key, v))
		return def
	}
	return d
}

// prefixes reads a comma-separated list of CIDRs or bare addresses.
func (p *parser) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, v := range strings.Split(p.getenv(key), ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			prefix, err := netip.ParsePrefix(v)
			if err != nil {
				p.errs = append(p.errs, fmt.Errorf("config: %s: invalid CIDR %q", key, v))
				continue
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("config: %s: invalid address %q", key, v))
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: invalid level %q", key, v))
		return def
	}
	return lvl
}
