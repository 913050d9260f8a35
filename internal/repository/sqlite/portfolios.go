package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
)

var _ repository.PortfolioRepository = (*PortfolioDB)(nil)

type PortfolioDB struct {
	conn *sql.DB
}

const portfolioColumns = `id, user_id, slug, headline, bio, theme, featured_repos, published, created_at, updated_at`

func (p *PortfolioDB) GetByUserID(ctx context.Context, userID string) (*model.Portfolio, error) {
	pf, err := scanPortfolio(p.conn.QueryRowContext(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("portfolio", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting portfolio of user %s: %w", userID, err)
	}
	return pf, nil
}

func (p *PortfolioDB) GetBySlug(ctx context.Context, slug string) (*model.Portfolio, error) {
	pf, err := scanPortfolio(p.conn.QueryRowContext(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("portfolio", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting portfolio %q: %w", slug, err)
	}
	return pf, nil
}

func (p *PortfolioDB) Upsert(ctx context.Context, pf *model.Portfolio) error {
	if pf.ID == "" {
		pf.ID = xid.New().String()
	}
	if pf.FeaturedRepos == nil {
		pf.FeaturedRepos = []string{}
	}
	repos, err := json.Marshal(pf.FeaturedRepos)
	if err != nil {
		return fmt.Errorf("sqlite: encoding featured repos: %w", err)
	}

	now := time.Now().UTC()
	pf.UpdatedAt = now
	_, err = p.conn.ExecContext(ctx,
		`INSERT INTO portfolios (`+portfolioColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			slug           = excluded.slug,
			headline       = excluded.headline,
			bio            = excluded.bio,
			theme          = excluded.theme,
			featured_repos = excluded.featured_repos,
			published      = excluded.published,
			updated_at     = excluded.updated_at`,
		pf.ID, pf.UserID, pf.Slug, pf.Headline, pf.Bio, pf.Theme, string(repos), pf.Published, now, now,
	)
	if isUniqueViolation(err) {
		return apperror.ConflictCode("slug_taken", fmt.Sprintf("the slug %q is already taken", pf.Slug))
	}
	if err != nil {
		return fmt.Errorf("sqlite: upserting portfolio of user %s: %w", pf.UserID, err)
	}

	err = p.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM portfolios WHERE user_id = ?`, pf.UserID,
	).Scan(&pf.ID, &pf.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: reading back portfolio of user %s: %w", pf.UserID, err)
	}
	return nil
}

func (p *PortfolioDB) Delete(ctx context.Context, userID string) error {
	res, err := p.conn.ExecContext(ctx, `DELETE FROM portfolios WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting portfolio of user %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("portfolio", userID)
	}
	return nil
}

func scanPortfolio(row *sql.Row) (*model.Portfolio, error) {
	var (
		pf    model.Portfolio
		repos string
	)
	err := row.Scan(&pf.ID, &pf.UserID, &pf.Slug, &pf.Headline, &pf.Bio, &pf.Theme, &repos,
		&pf.Published, &pf.CreatedAt, &pf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(repos), &pf.FeaturedRepos); err != nil {
		return nil, fmt.Errorf("decoding featured repos: %w", err)
	}
	return &pf, nil
}
