// Package server is the composition root: it opens the database, builds
// every service from config and mounts the HTTP routes.
//
//	config.Config → sqlite.DB → repositories → services → handlers → chi router
//
// Optional integrations (GitHub OAuth, Stripe, Gemini) are only constructed
// when configured; the routes stay mounted and answer 409 *_disabled.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/devstats/internal/ai"
	"github.com/sakif/devstats/internal/auth"
	"github.com/sakif/devstats/internal/billing"
	"github.com/sakif/devstats/internal/config"
	"github.com/sakif/devstats/internal/github"
	"github.com/sakif/devstats/internal/handler"
	"github.com/sakif/devstats/internal/middleware"
	sqliteRepo "github.com/sakif/devstats/internal/repository/sqlite"
	"github.com/sakif/devstats/internal/service"
	"github.com/sakif/devstats/internal/telemetry"
)

// shutdownTimeout bounds how long in-flight requests get after SIGTERM.
// A metrics fetch retrying against GitHub can take a while.
const shutdownTimeout = 30 * time.Second

// Server owns the database and the router. Close releases the database.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *telemetry.Metrics
}

// Integrations are the outside systems the server talks to. Nil fields are
// filled from config by New; tests pass fakes.
type Integrations struct {
	Fetcher  service.MetricsFetcher
	Payments billing.Provider
	Model    ai.Model
	GitHub   *auth.GitHubProvider
}

// New opens the database at cfg.DBPath and wires everything from cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	return NewWith(ctx, cfg, logger, Integrations{})
}

// NewWith is New with some integrations supplied by the caller.
func NewWith(ctx context.Context, cfg config.Config, logger *slog.Logger, in Integrations) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("server: creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: telemetry.New(),
	}
	if err := s.setupRoutes(ctx, in); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// integrations fills the nil fields of in from config.
func (s *Server) integrations(ctx context.Context, in Integrations) (Integrations, error) {
	cfg := s.config

	if in.Fetcher == nil {
		loc, err := time.LoadLocation(cfg.MetricsTimezone)
		if err != nil {
			return in, fmt.Errorf("metrics timezone: %w", err)
		}
		client := github.NewClient(github.ClientConfig{
			APIURL:    cfg.GitHubAPIURL,
			Timeout:   cfg.GitHubTimeout,
			BaseDelay: github.DefaultBaseDelay,
			Observer:  s.metrics,
			Logger:    s.logger,
		})
		in.Fetcher = github.NewFetcher(client, github.FetcherConfig{
			MaxCommitPages: cfg.GitHubMaxPages,
			Location:       loc,
			Logger:         s.logger,
		})
	}

	if in.Payments == nil && cfg.BillingEnabled() {
		payments, err := billing.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		if err != nil {
			return in, err
		}
		in.Payments = payments
	}
	if in.Model == nil && cfg.AIEnabled() {
		model, err := ai.NewGemini(ctx, ai.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
		if err != nil {
			return in, err
		}
		in.Model = model
	}
	if in.GitHub == nil && cfg.GitHubOAuthEnabled() {
		in.GitHub = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL, cfg.GitHubAPIURL).
			WithOAuthURL(cfg.GitHubOAuthURL)
	}

	s.logger.Info("integrations",
		slog.Bool("githubOAuth", in.GitHub != nil),
		slog.Bool("billing", in.Payments != nil),
		slog.Bool("ai", in.Model != nil),
	)
	return in, nil
}

// setupRoutes builds services and mounts:
//
//	GET    /healthz                  health (DB ping)
//	GET    /metrics                  Prometheus
//	POST   /auth/register            credentials sign-up
//	POST   /auth/login               credentials login
//	POST   /auth/logout
//	GET    /auth/github/login        → GitHub
//	GET    /auth/github/callback     ← GitHub
//	POST   /api/webhooks/stripe      payment events (signature checked)
//	GET    /api/p/{slug}             public portfolio
//	POST   /api/contact              contact form (rate limited)
//	---- session required ----
//	GET    /api/me
//	GET    /api/dashboard
//	GET    /api/github/token         DELETE /api/github/token
//	GET    /api/github/metrics
//	POST   /api/billing/checkout     POST /api/billing/portal
//	GET    /api/billing/subscription
//	GET|PUT|DELETE /api/portfolio
//	POST   /api/ai/{readme,bio,pr-summary,analyze}
func (s *Server) setupRoutes(ctx context.Context, in Integrations) error {
	cfg := s.config

	in, err := s.integrations(ctx, in)
	if err != nil {
		return err
	}

	// === Repositories ===
	sealer, err := auth.NewSealer(cfg.TokenEncryptionKey)
	if err != nil {
		return fmt.Errorf("token sealer: %w", err)
	}
	users := s.db.Users()
	accounts := s.db.Accounts()
	ghTokens := s.db.GithubTokens(sealer)

	// === Services ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}
	authSvc := service.NewAuthService(users, accounts, ghTokens, tokens, auth.NewPasswordService(), s.logger)
	githubSvc := service.NewGitHubService(ghTokens, accounts, users, in.Fetcher, s.metrics, s.logger)
	billingSvc := service.NewBillingService(s.db.Subscriptions(), users, s.db.WebhookEvents(), in.Payments,
		service.BillingConfig{PriceID: cfg.StripePriceID, BaseURL: cfg.BaseURL}, s.metrics, s.logger)
	portfolioSvc := service.NewPortfolioService(s.db.Portfolios(), billingSvc, s.logger)
	aiSvc := service.NewAIService(in.Model, billingSvc, githubSvc, s.metrics, s.logger)
	contactSvc := service.NewContactService(s.db.Contacts(), s.logger)
	dashboardSvc := service.NewDashboardService(authSvc, billingSvc, portfolioSvc, githubSvc)

	// === Handlers ===
	secure := strings.HasPrefix(cfg.BaseURL, "https://")
	authH := handler.NewAuthHandler(authSvc, billingSvc, in.GitHub, secure, s.logger)
	githubH := handler.NewGitHubHandler(githubSvc, dashboardSvc, s.logger)
	billingH := handler.NewBillingHandler(billingSvc, s.logger)
	portfolioH := handler.NewPortfolioHandler(portfolioSvc, s.logger)
	aiH := handler.NewAIHandler(aiSvc, s.logger)
	contactH := handler.NewContactHandler(contactSvc, s.logger)
	healthH := handler.NewHealthHandler(s.db, s.logger)
	contactLimit := middleware.NewRateLimiter(cfg.ContactRatePerMinute, cfg.ContactRatePerMinute, handler.WriteError)

	// === Middleware ===
	// Forwarded headers are honoured only from TRUSTED_PROXIES, before the
	// rate limiter and the logger read RemoteAddr.
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.TrustedRealIP(cfg.TrustedProxies))
	r.Use(middleware.Logger(s.logger, s.metrics))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", healthH.HandleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authH.HandleRegister)
		r.Post("/login", authH.HandleLogin)
		r.Post("/logout", authH.HandleLogout)
		r.Get("/github/login", authH.HandleGitHubLogin)
		r.With(auth.OptionalAuth(tokens)).Get("/github/callback", authH.HandleGitHubCallback)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/stripe", billingH.HandleWebhook)
		r.Get("/p/{slug}", portfolioH.HandlePublic)
		r.With(contactLimit.Middleware).Post("/contact", contactH.HandleSubmit)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/me", authH.HandleMe)
			r.Get("/dashboard", githubH.HandleDashboard)

			r.Get("/github/token", githubH.HandleTokenStatus)
			r.Delete("/github/token", githubH.HandleDisconnect)
			r.Get("/github/metrics", githubH.HandleMetrics)

			r.Post("/billing/checkout", billingH.HandleCheckout)
			r.Post("/billing/portal", billingH.HandlePortal)
			r.Get("/billing/subscription", billingH.HandleSubscription)

			r.Get("/portfolio", portfolioH.HandleGet)
			r.Put("/portfolio", portfolioH.HandlePut)
			r.Delete("/portfolio", portfolioH.HandleDelete)

			r.Post("/ai/readme", aiH.HandleReadme)
			r.Post("/ai/bio", aiH.HandleBio)
			r.Post("/ai/pr-summary", aiH.HandlePRSummary)
			r.Post("/ai/analyze", aiH.HandleAnalyze)
		})
	})

	return nil
}

// Handler is the root handler, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Close() error {
	return s.db.Close()
}

// Run serves until ctx is canceled (main cancels it on SIGINT/SIGTERM),
// then drains in-flight requests and closes the database.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// AI generation and a full metrics fetch both run inside the request.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.BaseURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
