package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// TokenPrefix identifies Hearth API keys
	TokenPrefix = "hearth_"

	tokenRandomBytes = 32
)

// GenerateToken creates a new API key token. Format: hearth_<base64url(32 bytes)>.
func GenerateToken() (string, error) {
	raw := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken returns the hex-encoded SHA-256 digest stored for a token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenDisplayPrefix returns the short prefix kept for display purposes,
// e.g. "hearth_AbCd"
func TokenDisplayPrefix(token string) string {
	if len(token) <= len(TokenPrefix)+4 {
		return token
	}
	return token[:len(TokenPrefix)+4]
}

// ValidTokenFormat reports whether a presented token looks like a Hearth key
func ValidTokenFormat(token string) bool {
	if !strings.HasPrefix(token, TokenPrefix) {
		return false
	}
	encoded := strings.TrimPrefix(token, TokenPrefix)
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	return len(decoded) == tokenRandomBytes
}

// ConstantTimeEqual compares two hashes without leaking timing information
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
