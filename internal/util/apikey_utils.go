package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
)

var ErrMalformedAPIKey = errors.New("malformed api key")

func generateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// generateRandomString returns exactly length alphanumeric characters.
func generateRandomString(length int) (string, error) {
	var sb strings.Builder
	for sb.Len() < length {
		b, err := generateRandomBytes(length)
		if err != nil {
			return "", err
		}
		str := base64.RawURLEncoding.EncodeToString(b)
		str = strings.ReplaceAll(str, "-", "")
		str = strings.ReplaceAll(str, "_", "")
		sb.WriteString(str)
	}
	return sb.String()[:length], nil
}

func GenerateAPIKey() (fullKey string, prefix string, keyHash string, err error) {
	prefix, err = generateRandomString(apikey.APIKeyPrefixLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate prefix: %w", err)
	}

	secret, err := generateRandomString(apikey.APIKeySecretLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate secret: %w", err)
	}

	fullKey = fmt.Sprintf(apikey.APIKeyFormat, prefix, secret)
	keyHash = HashAPIKey(fullKey)

	return fullKey, prefix, keyHash, nil
}

// ParseAPIKey extracts the lookup prefix from a full key.
func ParseAPIKey(fullKey string) (string, error) {
	parts := strings.SplitN(fullKey, "_", 3)
	if len(parts) != 3 || parts[0] != apikey.APIKeyScheme {
		return "", ErrMalformedAPIKey
	}
	if len(parts[1]) != apikey.APIKeyPrefixLength || parts[2] == "" {
		return "", ErrMalformedAPIKey
	}
	return parts[1], nil
}

func HashAPIKey(fullKey string) string {
	hashBytes := sha256.Sum256([]byte(fullKey))
	return fmt.Sprintf("%x", hashBytes)
}
