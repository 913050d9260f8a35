package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt work factor for production. Tests use bcrypt.MinCost.
const defaultCost = 12

const (
	MinPasswordLength = 8
	// bcrypt silently truncates anything longer; we reject it instead.
	MaxPasswordLength = 72
)

var (
	ErrPasswordMismatch = errors.New("auth: password does not match")
	ErrPasswordLength   = fmt.Errorf("auth: password must be %d to %d bytes", MinPasswordLength, MaxPasswordLength)
)

// PasswordService hashes and checks credentials for email sign-up.
//
// The cost lives on the struct so tests can swap the ~250ms cost-12 hash for
// a cost-4 one without touching the logic.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceWithCost is for tests in other packages. Never use a
// cost below 12 in production.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the self-contained bcrypt string ($2a$<cost>$<salt><hash>).
// Store it as-is; Verify knows how to decode it.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) < MinPasswordLength || len(plaintext) > MaxPasswordLength {
		return "", ErrPasswordLength
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrPasswordMismatch when
// it doesn't. The comparison is constant-time inside bcrypt.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
}
