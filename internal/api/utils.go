package api

import (
	"crypto/rand"
	"encoding/base64"
)

// generateRandomString returns a URL-safe random string of the given length, used for OAuth
// state values.
func generateRandomString(length int) string {
	// base64 yields 4 characters per 3 bytes
	b := make([]byte, (length*3)/4+3)
	if _, err := rand.Read(b); err != nil {
		logger.Error().Err(err).Msg("crypto/rand failed")
	}
	encoded := base64.RawURLEncoding.EncodeToString(b)
	if len(encoded) > length {
		return encoded[:length]
	}
	return encoded
}
