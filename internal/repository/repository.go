// Package repository declares the storage contracts the services depend on.
// internal/repository/sqlite is the only implementation; service tests use
// hand-written fakes.
package repository

import (
	"context"

	"github.com/sakif/devstats/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository stores users. Create returns a conflict when a non-empty
// email is already taken.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

// AccountRepository links users to OAuth identities.
type AccountRepository interface {
	// Link is idempotent for the same user and returns a conflict when the
	// provider identity already belongs to someone else.
	Link(ctx context.Context, account *model.Account) error
	GetByProviderAccount(ctx context.Context, provider, providerAccountID string) (*model.Account, error)
	GetByUser(ctx context.Context, userID, provider string) (*model.Account, error)
	Delete(ctx context.Context, userID, provider string) error
}

// GithubTokenRepository keeps one access token per user.
type GithubTokenRepository interface {
	Upsert(ctx context.Context, token *model.GithubToken) error
	Get(ctx context.Context, userID string) (*model.GithubToken, error)
	Delete(ctx context.Context, userID string) error
}

type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.Subscription, error)
	GetByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error)
	// Upsert is keyed on UserID.
	Upsert(ctx context.Context, sub *model.Subscription) error
}

type PortfolioRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.Portfolio, error)
	GetBySlug(ctx context.Context, slug string) (*model.Portfolio, error)
	// Upsert is keyed on UserID and returns a conflict on a taken slug.
	Upsert(ctx context.Context, p *model.Portfolio) error
	Delete(ctx context.Context, userID string) error
}

type ContactRepository interface {
	Create(ctx context.Context, msg *model.ContactMessage) error
	List(ctx context.Context, opts ListOptions) ([]model.ContactMessage, error)
}

// WebhookEventRepository remembers which provider events were applied.
type WebhookEventRepository interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	// Record is a no-op for an id that is already recorded.
	Record(ctx context.Context, eventID, eventType string) error
}
