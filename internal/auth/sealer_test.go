package auth

import (
	"errors"
	"testing"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer("encryption-passphrase")
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}

	sealed, err := s.Seal("gho_abcdef123456")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if sealed == "gho_abcdef123456" {
		t.Fatal("Seal() returned the plaintext")
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != "gho_abcdef123456" {
		t.Errorf("Open() = %q, want %q", got, "gho_abcdef123456")
	}
}

func TestSealer_NonceIsRandom(t *testing.T) {
	s, _ := NewSealer("encryption-passphrase")
	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	if a == b {
		t.Error("Seal() produced identical output twice")
	}
}

func TestSealer_OpenRejects(t *testing.T) {
	s, _ := NewSealer("encryption-passphrase")
	other, _ := NewSealer("another-passphrase")
	sealed, _ := s.Seal("gho_token")
	foreign, _ := other.Seal("gho_token")

	// Flip a character inside the nonce so the decoded bytes really change.
	flipped := []byte(sealed)
	if flipped[10] == 'A' {
		flipped[10] = 'B'
	} else {
		flipped[10] = 'A'
	}

	cases := map[string]string{
		"wrong key":  foreign,
		"not base64": "!!!",
		"too short":  "AAAA",
		"tampered":   string(flipped),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Open(in); !errors.Is(err, ErrSealedTokenInvalid) {
				t.Errorf("Open() error = %v, want ErrSealedTokenInvalid", err)
			}
		})
	}
}

func TestNewSealer_EmptyKey(t *testing.T) {
	if _, err := NewSealer(""); err == nil {
		t.Fatal("NewSealer(\"\") should fail")
	}
}
