package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenManager issues and validates short-lived client session tokens. The
// plaintext token is returned once at issue time; only its bcrypt hash is
// kept.
type TokenManager struct {
	tokens map[string]*TokenInfo
	mu     sync.RWMutex
}

// TokenInfo contains token metadata
type TokenInfo struct {
	Hash      string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager() *TokenManager {
	return &TokenManager{
		tokens: make(map[string]*TokenInfo),
	}
}

// GenerateToken creates a session token for a user. An existing session for
// the same user is replaced.
func (tm *TokenManager) GenerateToken(userID string, duration time.Duration) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	token := base64.URLEncoding.EncodeToString(tokenBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.tokens[userID] = &TokenInfo{
		Hash:      string(hash),
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(duration),
	}

	return token, nil
}

// ValidateToken checks a presented token against the user's stored session
func (tm *TokenManager) ValidateToken(userID, token string) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tokenInfo, ok := tm.tokens[userID]
	if !ok {
		return ErrInvalidToken
	}

	if time.Now().After(tokenInfo.ExpiresAt) {
		return ErrTokenExpired
	}

	if err := bcrypt.CompareHashAndPassword([]byte(tokenInfo.Hash), []byte(token)); err != nil {
		return ErrInvalidToken
	}

	return nil
}

// RevokeToken drops a user's session
func (tm *TokenManager) RevokeToken(userID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	delete(tm.tokens, userID)
}

// CleanupExpiredTokens removes expired sessions
func (tm *TokenManager) CleanupExpiredTokens() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	for userID, tokenInfo := range tm.tokens {
		if now.After(tokenInfo.ExpiresAt) {
			delete(tm.tokens, userID)
		}
	}
}

// ActiveSessions returns the number of unexpired sessions
func (tm *TokenManager) ActiveSessions() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	count := 0
	now := time.Now()
	for _, tokenInfo := range tm.tokens {
		if now.Before(tokenInfo.ExpiresAt) {
			count++
		}
	}
	return count
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
