package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Admin key format: ak_{secret}
// Example: ak_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const KeySecretLen = 32 // Secret length (hex encoded 16 bytes)

var (
	// ErrInvalidKeyFormat indicates the key format is invalid.
	ErrInvalidKeyFormat = errors.New("invalid admin key format")
	keyFormatRegex      = regexp.MustCompile(`^ak_([a-f0-9]{32})$`)
)

// GeneratedKey contains the parts of a newly generated admin key.
type GeneratedKey struct {
	Plaintext string // Full key (show once only)
	Hash      string // Argon2id hash for ADMIN_KEY_HASH
}

// GenerateAdminKey creates a new admin key.
// Returns the plaintext key (to show once) and the hash (to configure).
func GenerateAdminKey() (*GeneratedKey, error) {
	secretBytes := make([]byte, 16)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	plaintext := "ak_" + hex.EncodeToString(secretBytes)

	hash, err := HashKey(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{
		Plaintext: plaintext,
		Hash:      hash,
	}, nil
}

// ValidateKeyFormat checks if the key matches the expected format.
func ValidateKeyFormat(key string) bool {
	return keyFormatRegex.MatchString(key)
}
