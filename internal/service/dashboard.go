package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/devstats/internal/model"
)

// Dashboard is everything the dashboard page needs in one response.
// Portfolio is nil when the user has none; Metrics is nil when GitHub is
// not connected.
type Dashboard struct {
	User         *model.User         `json:"user"`
	Subscription *model.Subscription `json:"subscription"`
	Pro          bool                `json:"pro"`
	Portfolio    *model.Portfolio    `json:"portfolio"`
	GitHub       *TokenStatus        `json:"github"`
	Metrics      *MetricsResult      `json:"metrics"`
}

type DashboardService struct {
	auth      *AuthService
	billing   *BillingService
	portfolio *PortfolioService
	github    *GitHubService
}

func NewDashboardService(auth *AuthService, billing *BillingService, portfolio *PortfolioService, github *GitHubService) *DashboardService {
	return &DashboardService{auth: auth, billing: billing, portfolio: portfolio, github: github}
}

// Load runs the independent reads concurrently. The first hard failure
// cancels the rest.
func (s *DashboardService) Load(ctx context.Context, userID string) (*Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		u, err := s.auth.User(ctx, userID)
		d.User = u
		return err
	})
	g.Go(func() error {
		sub, err := s.billing.Subscription(ctx, userID)
		if err != nil {
			return err
		}
		d.Subscription = sub
		d.Pro = sub.IsPro(s.billing.now())
		return nil
	})
	g.Go(func() error {
		p, err := s.portfolio.Get(ctx, userID)
		if isNotFound(err) {
			return nil
		}
		d.Portfolio = p
		return err
	})
	g.Go(func() error {
		st, err := s.github.Status(ctx, userID)
		d.GitHub = st
		return err
	})
	g.Go(func() error {
		m, err := s.github.Metrics(ctx, userID)
		if errors.Is(err, errNotConnected) {
			return nil
		}
		d.Metrics = m
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service/dashboard: loading %s: %w", userID, err)
	}
	return &d, nil
}
