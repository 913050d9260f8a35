// Package auth holds the session, credential and OAuth primitives:
//
//   - TokenService: HS256 session JWTs carried in the "token" cookie
//   - PasswordService: bcrypt hashing for credentials sign-up
//   - GitHubProvider: the GitHub OAuth authorization code flow
//   - Sealer: authenticated encryption for GitHub tokens at rest
//   - RequireAuth / OptionalAuth: chi middleware putting the user ID in the context
//
// SESSION FLOW:
// Login (password or GitHub) → TokenService.Issue → Set-Cookie token=<jwt>;
// every later request → middleware → TokenService.Validate → userID in ctx.
// Sessions are stateless; logout only deletes the cookie.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "devstats"

// DefaultSessionTTL is used when NewTokenService gets a non-positive TTL.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenService signs and verifies session tokens with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. The secret should be at least 32
// bytes of random data in production (JWT_SECRET=$(openssl rand -hex 32));
// anything under 16 characters is rejected.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of issued tokens; handlers use it for the cookie MaxAge.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a session token for userID with the configured lifetime.
func (s *TokenService) Issue(userID string) (string, error) {
	return s.issueFor(userID, s.ttl)
}

// issueFor signs a token with an explicit lifetime. Negative lifetimes
// produce already-expired tokens, which the tests rely on.
func (s *TokenService) issueFor(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}
	now := s.now()
	c := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, issuer, algorithm and expiry, and returns the
// user ID from the "sub" claim. Pinning HS256 with WithValidMethods blocks
// the "alg: none" / algorithm-confusion family of attacks.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || c.Subject == "" {
		return "", ErrTokenInvalid
	}
	return c.Subject, nil
}
