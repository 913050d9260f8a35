package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
)

var _ repository.GithubTokenRepository = (*GithubTokenDB)(nil)

// Sealer encrypts values at rest. *auth.Sealer satisfies it.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type GithubTokenDB struct {
	conn   *sql.DB
	sealer Sealer
}

// Upsert replaces the user's token, keeping the original created_at.
func (g *GithubTokenDB) Upsert(ctx context.Context, tok *model.GithubToken) error {
	sealed, err := g.sealer.Seal(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("sqlite: sealing github token: %w", err)
	}
	if tok.TokenType == "" {
		tok.TokenType = "bearer"
	}

	now := time.Now().UTC()
	_, err = g.conn.ExecContext(ctx,
		`INSERT INTO github_tokens (user_id, access_token, token_type, scope, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			token_type   = excluded.token_type,
			scope        = excluded.scope,
			updated_at   = excluded.updated_at`,
		tok.UserID, sealed, tok.TokenType, tok.Scope, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting github token of user %s: %w", tok.UserID, err)
	}

	tok.UpdatedAt = now
	err = g.conn.QueryRowContext(ctx,
		`SELECT created_at FROM github_tokens WHERE user_id = ?`, tok.UserID,
	).Scan(&tok.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: reading back github token of user %s: %w", tok.UserID, err)
	}
	return nil
}

func (g *GithubTokenDB) Get(ctx context.Context, userID string) (*model.GithubToken, error) {
	var (
		tok    model.GithubToken
		sealed string
	)
	err := g.conn.QueryRowContext(ctx,
		`SELECT user_id, access_token, token_type, scope, created_at, updated_at
		 FROM github_tokens WHERE user_id = ?`, userID,
	).Scan(&tok.UserID, &sealed, &tok.TokenType, &tok.Scope, &tok.CreatedAt, &tok.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("github token", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting github token of user %s: %w", userID, err)
	}

	tok.AccessToken, err = g.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening github token of user %s: %w", userID, err)
	}
	return &tok, nil
}

func (g *GithubTokenDB) Delete(ctx context.Context, userID string) error {
	_, err := g.conn.ExecContext(ctx, `DELETE FROM github_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting github token of user %s: %w", userID, err)
	}
	return nil
}
