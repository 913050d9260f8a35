package model

import "time"

// ProviderGitHub is the only OAuth provider wired today.
const ProviderGitHub = "github"

// Account links a user to an identity at an OAuth provider.
// (Provider, ProviderAccountID) is unique: one GitHub identity belongs to
// exactly one DevStats user.
type Account struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"providerAccountId"` // GitHub's numeric user ID, as text
	CreatedAt         time.Time `json:"createdAt"`
}

// GithubToken is the OAuth access token used to call GitHub on the user's
// behalf. AccessToken is plaintext in memory only; the repository stores it
// sealed.
type GithubToken struct {
	UserID      string    `json:"userId"`
	AccessToken string    `json:"-"`
	TokenType   string    `json:"tokenType"`
	Scope       string    `json:"scope"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
