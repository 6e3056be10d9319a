package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	tm := NewTokenManager()

	token, err := tm.GenerateToken("user-1", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken returned empty token")
	}

	if err := tm.ValidateToken("user-1", token); err != nil {
		t.Errorf("ValidateToken rejected a fresh token: %v", err)
	}
}

func TestValidateTokenRejectsWrongToken(t *testing.T) {
	tm := NewTokenManager()

	if _, err := tm.GenerateToken("user-1", time.Minute); err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if err := tm.ValidateToken("user-1", "forged-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken returned %v, want ErrInvalidToken", err)
	}
	if err := tm.ValidateToken("unknown-user", "anything"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken for unknown user returned %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager()

	token, err := tm.GenerateToken("user-1", -time.Second)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if err := tm.ValidateToken("user-1", token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ValidateToken returned %v, want ErrTokenExpired", err)
	}
}

func TestGenerateTokenReplacesSession(t *testing.T) {
	tm := NewTokenManager()

	first, err := tm.GenerateToken("user-1", time.Minute)
	if err != nil {
		t.Fatalf("first GenerateToken failed: %v", err)
	}
	second, err := tm.GenerateToken("user-1", time.Minute)
	if err != nil {
		t.Fatalf("second GenerateToken failed: %v", err)
	}

	if err := tm.ValidateToken("user-1", first); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("old token still validates after reissue: %v", err)
	}
	if err := tm.ValidateToken("user-1", second); err != nil {
		t.Errorf("new token rejected: %v", err)
	}
}

func TestRevokeToken(t *testing.T) {
	tm := NewTokenManager()

	token, err := tm.GenerateToken("user-1", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	tm.RevokeToken("user-1")

	if err := tm.ValidateToken("user-1", token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken after revoke returned %v, want ErrInvalidToken", err)
	}
}

func TestCleanupExpiredTokens(t *testing.T) {
	tm := NewTokenManager()

	if _, err := tm.GenerateToken("expired-user", -time.Second); err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	liveToken, err := tm.GenerateToken("live-user", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	tm.CleanupExpiredTokens()

	if got := tm.ActiveSessions(); got != 1 {
		t.Errorf("active sessions after cleanup = %d, want 1", got)
	}
	if err := tm.ValidateToken("live-user", liveToken); err != nil {
		t.Errorf("live session swept during cleanup: %v", err)
	}
}

func TestSecureCompare(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"equal", "secret-key", "secret-key", true},
		{"different", "secret-key", "other-key", false},
		{"different length", "secret", "secret-key", false},
		{"both empty", "", "", true},
		{"one empty", "secret", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SecureCompare(tt.a, tt.b); got != tt.want {
				t.Errorf("SecureCompare(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
