package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/model"
)

// newTestDB returns a migrated in-memory database closed at test end.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Name: "Test User"}
	if err := db.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return u
}

// reverseSealer is enough to prove the stored value is not the plaintext.
type reverseSealer struct{}

func (reverseSealer) Seal(s string) (string, error) { return "sealed:" + reverse(s), nil }
func (reverseSealer) Open(s string) (string, error) {
	if !strings.HasPrefix(s, "sealed:") {
		return "", errors.New("not sealed")
	}
	return reverse(strings.TrimPrefix(s, "sealed:")), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// =========================================================================
// SCHEMA
// =========================================================================

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

// =========================================================================
// USERS
// =========================================================================

func TestUsers_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := createTestUser(t, db, "ada@example.com")
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("Create() did not fill ID/CreatedAt: %+v", u)
	}

	byID, err := db.Users().GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Email != "ada@example.com" || byID.Name != "Test User" {
		t.Errorf("GetByID() = %+v", byID)
	}

	byEmail, err := db.Users().GetByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byEmail.ID != u.ID {
		t.Errorf("GetByEmail() ID = %q, want %q", byEmail.ID, u.ID)
	}
}

func TestUsers_EmailUniqueButEmptyAllowedTwice(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "dup@example.com")
	err := db.Users().Create(ctx, &model.User{Email: "dup@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() duplicate email error = %v, want ErrConflict", err)
	}

	createTestUser(t, db, "")
	createTestUser(t, db, "")
}

func TestUsers_Update(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "")

	u.Login = "octocat"
	u.AvatarURL = "https://avatars/1"
	if err := db.Users().Update(ctx, u); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := db.Users().GetByID(ctx, u.ID)
	if got.Login != "octocat" || got.AvatarURL != "https://avatars/1" {
		t.Errorf("after Update() got %+v", got)
	}

	err := db.Users().Update(ctx, &model.User{ID: "missing"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() missing user error = %v, want ErrNotFound", err)
	}
}

func TestUsers_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.Users().GetByID(ctx, "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if _, err := db.Users().GetByEmail(ctx, ""); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByEmail(\"\") error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// ACCOUNTS
// =========================================================================

func TestAccounts_Link(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	acc := &model.Account{UserID: alice.ID, Provider: model.ProviderGitHub, ProviderAccountID: "42"}
	if err := db.Accounts().Link(ctx, acc); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	again := &model.Account{UserID: alice.ID, Provider: model.ProviderGitHub, ProviderAccountID: "42"}
	if err := db.Accounts().Link(ctx, again); err != nil {
		t.Fatalf("Link() same user again error = %v", err)
	}
	if again.ID != acc.ID {
		t.Errorf("relinking created a new row: %q != %q", again.ID, acc.ID)
	}

	stolen := &model.Account{UserID: bob.ID, Provider: model.ProviderGitHub, ProviderAccountID: "42"}
	if err := db.Accounts().Link(ctx, stolen); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Link() to another user error = %v, want ErrConflict", err)
	}

	second := &model.Account{UserID: alice.ID, Provider: model.ProviderGitHub, ProviderAccountID: "43"}
	if err := db.Accounts().Link(ctx, second); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Link() second identity error = %v, want ErrConflict", err)
	}
}

func TestAccounts_LookupAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "")
	_ = db.Accounts().Link(ctx, &model.Account{UserID: u.ID, Provider: model.ProviderGitHub, ProviderAccountID: "7"})

	got, err := db.Accounts().GetByProviderAccount(ctx, model.ProviderGitHub, "7")
	if err != nil || got.UserID != u.ID {
		t.Fatalf("GetByProviderAccount() = %+v, %v", got, err)
	}
	if _, err := db.Accounts().GetByUser(ctx, u.ID, model.ProviderGitHub); err != nil {
		t.Fatalf("GetByUser() error = %v", err)
	}

	if err := db.Accounts().Delete(ctx, u.ID, model.ProviderGitHub); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := db.Accounts().GetByUser(ctx, u.ID, model.ProviderGitHub); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByUser() after Delete error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// GITHUB TOKENS
// =========================================================================

func TestGithubTokens_SealedAtRest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "")
	tokens := db.GithubTokens(reverseSealer{})

	tok := &model.GithubToken{UserID: u.ID, AccessToken: "gho_first", Scope: "repo"}
	if err := tokens.Upsert(ctx, tok); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	var stored string
	_ = db.conn.QueryRow(`SELECT access_token FROM github_tokens WHERE user_id = ?`, u.ID).Scan(&stored)
	if stored == "gho_first" {
		t.Fatal("token stored in the clear")
	}

	got, err := tokens.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccessToken != "gho_first" || got.TokenType != "bearer" || got.Scope != "repo" {
		t.Errorf("Get() = %+v", got)
	}
}

func TestGithubTokens_ReplaceKeepsCreatedAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "")
	tokens := db.GithubTokens(reverseSealer{})

	first := &model.GithubToken{UserID: u.ID, AccessToken: "gho_first"}
	_ = tokens.Upsert(ctx, first)
	time.Sleep(5 * time.Millisecond)
	second := &model.GithubToken{UserID: u.ID, AccessToken: "gho_second"}
	if err := tokens.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert() replace error = %v", err)
	}

	got, _ := tokens.Get(ctx, u.ID)
	if got.AccessToken != "gho_second" {
		t.Errorf("AccessToken = %q, want gho_second", got.AccessToken)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on replace: %v -> %v", first.CreatedAt, got.CreatedAt)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}
}

func TestGithubTokens_Delete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "")
	tokens := db.GithubTokens(reverseSealer{})
	_ = tokens.Upsert(ctx, &model.GithubToken{UserID: u.ID, AccessToken: "gho_x"})

	if err := tokens.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := tokens.Get(ctx, u.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
}
