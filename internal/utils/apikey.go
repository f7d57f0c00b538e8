package utils

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is how many leading characters of the random part are stored
// in clear for lookup; the full key is only ever stored as a bcrypt hash.
const KeyPrefixLen = 8

// NewAPIKey generates a random API key with the given scheme prefix
// (e.g. "agentrank_sk_") and returns the full key plus its lookup prefix.
func NewAPIKey(scheme string) (full, prefix string, err error) {
	raw := make([]byte, 24)
	if _, err = rand.Read(raw); err != nil {
		return "", "", err
	}
	random := hex.EncodeToString(raw)
	return scheme + random, random[:KeyPrefixLen], nil
}

// HashKey hashes a full API key for storage.
func HashKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(b), err
}

// CheckKeyHash reports whether a presented key matches the stored hash.
func CheckKeyHash(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
