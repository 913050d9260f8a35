package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
)

const (
	MinSlugLength     = 3
	MaxSlugLength     = 40
	MaxHeadlineLength = 120
	MaxBioLength      = 2000
	MaxFeaturedRepos  = 6
	DefaultTheme      = "minimal"
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9-]+$`)
	repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
)

// PortfolioInput is the editable part of a portfolio.
type PortfolioInput struct {
	Slug          string   `json:"slug"`
	Headline      string   `json:"headline"`
	Bio           string   `json:"bio"`
	Theme         string   `json:"theme"`
	FeaturedRepos []string `json:"featuredRepos"`
	Published     bool     `json:"published"`
}

// ProChecker is satisfied by *BillingService.
type ProChecker interface {
	RequirePro(ctx context.Context, userID, feature string) error
}

type PortfolioService struct {
	repo   repository.PortfolioRepository
	pro    ProChecker
	logger *slog.Logger
}

func NewPortfolioService(repo repository.PortfolioRepository, pro ProChecker, logger *slog.Logger) *PortfolioService {
	return &PortfolioService{repo: repo, pro: pro, logger: logger}
}

func (s *PortfolioService) Get(ctx context.Context, userID string) (*model.Portfolio, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// Save creates or replaces the user's portfolio. Publishing needs Pro;
// drafts don't.
func (s *PortfolioService) Save(ctx context.Context, userID string, in PortfolioInput) (*model.Portfolio, error) {
	pf, err := validatePortfolio(in)
	if err != nil {
		return nil, err
	}
	if pf.Published {
		if err := s.pro.RequirePro(ctx, userID, "portfolio publishing"); err != nil {
			return nil, err
		}
	}

	pf.UserID = userID
	if err := s.repo.Upsert(ctx, pf); err != nil {
		return nil, fmt.Errorf("service/portfolio: saving portfolio of %s: %w", userID, err)
	}
	s.logger.Info("portfolio saved",
		slog.String("userID", userID),
		slog.String("slug", pf.Slug),
		slog.Bool("published", pf.Published),
	)
	return pf, nil
}

func (s *PortfolioService) Delete(ctx context.Context, userID string) error {
	return s.repo.Delete(ctx, userID)
}

// Public returns a published portfolio. Drafts are reported as not found so
// their slugs don't leak.
func (s *PortfolioService) Public(ctx context.Context, slug string) (*model.Portfolio, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	pf, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !pf.Published {
		return nil, apperror.NotFound("portfolio", slug)
	}
	return pf, nil
}

func validatePortfolio(in PortfolioInput) (*model.Portfolio, error) {
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if n := len(slug); n < MinSlugLength || n > MaxSlugLength || !slugPattern.MatchString(slug) {
		return nil, apperror.ValidationFailed("slug",
			fmt.Sprintf("slug must be %d to %d characters of a-z, 0-9 and '-'", MinSlugLength, MaxSlugLength))
	}

	headline := strings.TrimSpace(in.Headline)
	if utf8.RuneCountInString(headline) > MaxHeadlineLength {
		return nil, apperror.ValidationFailed("headline",
			fmt.Sprintf("headline must be %d characters or less", MaxHeadlineLength))
	}
	bio := strings.TrimSpace(in.Bio)
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return nil, apperror.ValidationFailed("bio",
			fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}

	theme := strings.ToLower(strings.TrimSpace(in.Theme))
	if theme == "" {
		theme = DefaultTheme
	}
	if !slices.Contains(model.PortfolioThemes, theme) {
		return nil, apperror.ValidationFailed("theme",
			fmt.Sprintf("theme must be one of %s", strings.Join(model.PortfolioThemes, ", ")))
	}

	repos := make([]string, 0, len(in.FeaturedRepos))
	for _, r := range in.FeaturedRepos {
		r = strings.TrimSpace(r)
		if !repoNamePattern.MatchString(r) {
			return nil, apperror.ValidationFailed("featuredRepos",
				fmt.Sprintf("%q is not an owner/name repository", r))
		}
		if !slices.Contains(repos, r) {
			repos = append(repos, r)
		}
	}
	if len(repos) > MaxFeaturedRepos {
		return nil, apperror.ValidationFailed("featuredRepos",
			fmt.Sprintf("at most %d featured repositories", MaxFeaturedRepos))
	}

	return &model.Portfolio{
		Slug:          slug,
		Headline:      headline,
		Bio:           bio,
		Theme:         theme,
		FeaturedRepos: repos,
		Published:     in.Published,
	}, nil
}

// isNotFound is shared by the services that treat a missing row as "none".
func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
