package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateState returns a fresh random correlation value for one
// authorization round trip.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
