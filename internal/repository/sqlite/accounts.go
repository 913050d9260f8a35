package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
)

var _ repository.AccountRepository = (*AccountDB)(nil)

type AccountDB struct {
	conn *sql.DB
}

func (a *AccountDB) Link(ctx context.Context, acc *model.Account) error {
	existing, err := a.GetByProviderAccount(ctx, acc.Provider, acc.ProviderAccountID)
	switch {
	case err == nil && existing.UserID == acc.UserID:
		*acc = *existing
		return nil
	case err == nil:
		return apperror.ConflictCode("account_linked_elsewhere",
			"this GitHub account is already connected to another DevStats user")
	case !errors.Is(err, apperror.ErrNotFound):
		return err
	}

	acc.ID = xid.New().String()
	acc.CreatedAt = time.Now().UTC()
	_, err = a.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, provider, provider_account_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		acc.ID, acc.UserID, acc.Provider, acc.ProviderAccountID, acc.CreatedAt,
	)
	if isUniqueViolation(err) {
		// (user_id, provider): the user already has a different GitHub
		// identity linked.
		return apperror.ConflictCode("provider_already_linked",
			"a different GitHub account is already connected, disconnect it first")
	}
	if err != nil {
		return fmt.Errorf("sqlite: linking %s account: %w", acc.Provider, err)
	}
	return nil
}

func (a *AccountDB) GetByProviderAccount(ctx context.Context, provider, providerAccountID string) (*model.Account, error) {
	acc, err := scanAccount(a.conn.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_account_id, created_at
		 FROM accounts WHERE provider = ? AND provider_account_id = ?`,
		provider, providerAccountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound(provider+" account", providerAccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting %s account: %w", provider, err)
	}
	return acc, nil
}

func (a *AccountDB) GetByUser(ctx context.Context, userID, provider string) (*model.Account, error) {
	acc, err := scanAccount(a.conn.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_account_id, created_at
		 FROM accounts WHERE user_id = ? AND provider = ?`,
		userID, provider))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound(provider+" account", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting %s account of user %s: %w", provider, userID, err)
	}
	return acc, nil
}

// Delete is a no-op when nothing is linked.
func (a *AccountDB) Delete(ctx context.Context, userID, provider string) error {
	_, err := a.conn.ExecContext(ctx,
		`DELETE FROM accounts WHERE user_id = ? AND provider = ?`, userID, provider)
	if err != nil {
		return fmt.Errorf("sqlite: unlinking %s account of user %s: %w", provider, userID, err)
	}
	return nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var acc model.Account
	if err := row.Scan(&acc.ID, &acc.UserID, &acc.Provider, &acc.ProviderAccountID, &acc.CreatedAt); err != nil {
		return nil, err
	}
	return &acc, nil
}
