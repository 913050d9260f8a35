package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/auth"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
)

const MaxNameLength = 100

// AuthService owns sign-up, login and the GitHub OAuth callback.
//
//	AuthHandler (HTTP) → AuthService → UserRepository / AccountRepository / GithubTokenRepository
//	                                 ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never touches cookies or redirects; the handler turns an AuthResult
// into a Set-Cookie.
type AuthService struct {
	users     repository.UserRepository
	accounts  repository.AccountRepository
	ghTokens  repository.GithubTokenRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	accounts repository.AccountRepository,
	ghTokens repository.GithubTokenRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		accounts:  accounts,
		ghTokens:  ghTokens,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the session JWT so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// GitHubGrant is the OAuth token GitHub handed us at the callback.
type GitHubGrant struct {
	AccessToken string
	TokenType   string
	Scope       string
}

// Register creates a credentials user. Email is case-insensitive.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if len(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}

	hash, err := s.passwords.Hash(password)
	if errors.Is(err, auth.ErrPasswordLength) {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be between %d and %d characters", auth.MinPasswordLength, auth.MaxPasswordLength))
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Email: email, Name: name, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: registering %s: %w", email, err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return s.issue(user)
}

// Login checks credentials. Unknown email and wrong password produce the
// same error so the response doesn't reveal which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if !user.HasPassword() {
		// GitHub-only account.
		return nil, invalid
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("failed login", slog.String("userID", user.ID))
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}
	return s.issue(user)
}

// CompleteGitHub finishes the OAuth callback.
//
//   - currentUserID set (already logged in): link the GitHub identity to that user.
//   - otherwise: log in the user owning the identity, or create one.
//
// Either way the profile fields are refreshed from GitHub and the access
// token replaces any previously stored one.
func (s *AuthService) CompleteGitHub(ctx context.Context, currentUserID string, gh *auth.GitHubUser, grant GitHubGrant) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, errors.New("service/auth: GitHub user must not be empty")
	}
	if grant.AccessToken == "" {
		return nil, errors.New("service/auth: GitHub grant has no access token")
	}
	accountID := strconv.FormatInt(gh.ID, 10)

	user, err := s.resolveGitHubUser(ctx, currentUserID, gh, accountID)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Link(ctx, &model.Account{
		UserID:            user.ID,
		Provider:          model.ProviderGitHub,
		ProviderAccountID: accountID,
	}); err != nil {
		return nil, fmt.Errorf("service/auth: linking GitHub account %s: %w", accountID, err)
	}

	user.Login = gh.Login
	user.AvatarURL = gh.AvatarURL
	if user.Name == "" {
		user.Name = gh.Name
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: refreshing profile of %s: %w", user.ID, err)
	}

	if err := s.ghTokens.Upsert(ctx, &model.GithubToken{
		UserID:      user.ID,
		AccessToken: grant.AccessToken,
		TokenType:   grant.TokenType,
		Scope:       grant.Scope,
	}); err != nil {
		return nil, fmt.Errorf("service/auth: storing GitHub token of %s: %w", user.ID, err)
	}

	s.logger.Info("GitHub connected",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
		slog.Bool("linked", currentUserID != ""),
	)
	return s.issue(user)
}

func (s *AuthService) resolveGitHubUser(ctx context.Context, currentUserID string, gh *auth.GitHubUser, accountID string) (*model.User, error) {
	if currentUserID != "" {
		user, err := s.users.GetByID(ctx, currentUserID)
		if err != nil {
			return nil, fmt.Errorf("service/auth: loading session user %s: %w", currentUserID, err)
		}
		return user, nil
	}

	acc, err := s.accounts.GetByProviderAccount(ctx, model.ProviderGitHub, accountID)
	switch {
	case err == nil:
		user, err := s.users.GetByID(ctx, acc.UserID)
		if err != nil {
			return nil, fmt.Errorf("service/auth: loading user %s: %w", acc.UserID, err)
		}
		return user, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up GitHub account %s: %w", accountID, err)
	}

	// First GitHub login. If the GitHub email is already registered with a
	// password, the owner must log in and connect GitHub from the dashboard
	// instead; merging silently would let a GitHub account take over.
	email := strings.ToLower(gh.Email)
	if email != "" {
		if _, err := s.users.GetByEmail(ctx, email); err == nil {
			return nil, apperror.ConflictCode("email_taken",
				"an account with this email already exists, log in and connect GitHub from the dashboard")
		}
	}

	user := &model.User{Email: email, Name: gh.Name, Login: gh.Login, AvatarURL: gh.AvatarURL}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user for GitHub %s: %w", gh.Login, err)
	}
	s.logger.Info("user registered via GitHub", slog.String("userID", user.ID))
	return user, nil
}

func (s *AuthService) User(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// SessionTTL is the lifetime of issued session tokens.
func (s *AuthService) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "invalid email format")
	}
	return email, nil
}
