package crypto

import (
	"errors"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret-password")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPassword(hash, "secret-password") {
		t.Fatal("expected password verification to succeed")
	}

	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestHashPasswordRejectsShortPasswords(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestVerifyPasswordEmptyHash(t *testing.T) {
	if VerifyPassword("", "anything") {
		t.Fatal("expected empty hash to never verify")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if len(token) == 0 {
		t.Fatal("expected token to be non-empty")
	}

	if _, err := GenerateToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}
