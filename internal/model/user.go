// Package model defines the records persisted by the repository layer and
// passed between services and handlers.
package model

import "time"

// User is a DevStats account. A user signs up either with email + password
// (PasswordHash set) or through GitHub OAuth (an Account row links them);
// both can coexist on the same user once GitHub is connected.
//
// Email is empty for OAuth users who hide their email on GitHub. The UNIQUE
// index on email ignores empty values, so many such users can exist.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Login        string    `json:"login"`     // GitHub username, empty until GitHub is connected
	AvatarURL    string    `json:"avatarUrl"` // Profile picture URL
	PasswordHash string    `json:"-"`         // bcrypt hash, never serialized
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasPassword reports whether the user can sign in with credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
