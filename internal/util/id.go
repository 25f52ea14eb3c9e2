package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random UUIDv4 string used for jobs and persisted entities.
func NewID() string {
	return uuid.NewString()
}

// RandomHex returns 2n lowercase hex characters from crypto/rand.
func RandomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
