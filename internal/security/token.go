package security

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenManager generates opaque random tokens used for session ids and CSRF
// secrets.
type TokenManager struct{}

// NewTokenManager creates a new token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate returns 32 random bytes as a 64-character hex string.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}

	return hex.EncodeToString(randomBytes), nil
}
