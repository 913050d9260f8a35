package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/github"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
	"github.com/sakif/devstats/internal/telemetry"
)

// MetricsFetcher is satisfied by *github.Fetcher.
type MetricsFetcher interface {
	Fetch(ctx context.Context, token string) (*github.Metrics, error)
}

// GitHubService exposes the stored GitHub connection and runs the metrics
// fetcher with it.
type GitHubService struct {
	tokens   repository.GithubTokenRepository
	accounts repository.AccountRepository
	users    repository.UserRepository
	fetcher  MetricsFetcher
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewGitHubService(
	tokens repository.GithubTokenRepository,
	accounts repository.AccountRepository,
	users repository.UserRepository,
	fetcher MetricsFetcher,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *GitHubService {
	return &GitHubService{
		tokens:   tokens,
		accounts: accounts,
		users:    users,
		fetcher:  fetcher,
		metrics:  metrics,
		logger:   logger,
	}
}

// TokenStatus describes the stored connection. The token itself never
// leaves the server.
type TokenStatus struct {
	Connected bool       `json:"connected"`
	Login     string     `json:"login,omitempty"`
	Scope     string     `json:"scope,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// MetricsResult is what GET /api/github/metrics returns. Degraded marks the
// zeroed fallback record.
type MetricsResult struct {
	*github.Metrics
	Degraded bool `json:"degraded"`
}

var errNotConnected = apperror.ConflictCode("github_not_connected", "connect your GitHub account first")

func (s *GitHubService) Status(ctx context.Context, userID string) (*TokenStatus, error) {
	tok, err := s.tokens.Get(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return &TokenStatus{Connected: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("service/github: loading token of %s: %w", userID, err)
	}

	status := &TokenStatus{Connected: true, Scope: tok.Scope, UpdatedAt: &tok.UpdatedAt}
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		status.Login = user.Login
	}
	return status, nil
}

// Disconnect forgets the token and the account link. The GitHub login stays
// on the profile for display.
func (s *GitHubService) Disconnect(ctx context.Context, userID string) error {
	if err := s.tokens.Delete(ctx, userID); err != nil {
		return fmt.Errorf("service/github: deleting token of %s: %w", userID, err)
	}
	if err := s.accounts.Delete(ctx, userID, model.ProviderGitHub); err != nil {
		return fmt.Errorf("service/github: unlinking account of %s: %w", userID, err)
	}
	s.logger.Info("GitHub disconnected", slog.String("userID", userID))
	return nil
}

// Metrics fetches fresh metrics. A user without a stored token gets a
// github_not_connected conflict; any fetch failure is logged and answered
// with DefaultMetrics and Degraded set.
func (s *GitHubService) Metrics(ctx context.Context, userID string) (*MetricsResult, error) {
	tok, err := s.tokens.Get(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, errNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("service/github: loading token of %s: %w", userID, err)
	}

	m, err := s.fetcher.Fetch(ctx, tok.AccessToken)
	if err != nil {
		if ctx.Err() != nil {
			// Client went away; nobody will read a fallback.
			return nil, ctx.Err()
		}
		s.logger.Warn("github metrics fetch failed, serving defaults",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		s.metrics.MetricsFallback()
		return &MetricsResult{Metrics: github.DefaultMetrics(), Degraded: true}, nil
	}
	return &MetricsResult{Metrics: m}, nil
}
