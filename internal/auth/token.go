// Package auth holds the token primitives shared by the session and
// password-reset flows: generation from a CSPRNG and the hashed form
// that gets persisted.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// TokenBytes is the entropy of every issued token. 32 bytes = 256 bits,
// hex-encoded to 64 characters.
const TokenBytes = 32

// GenerateToken creates a secure random token and its SHA-256 hash.
// The plaintext goes to the client (cookie or reset mail); only the
// hash is stored, so a leaked database does not leak usable tokens.
func GenerateToken() (token, hash string, err error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken computes the hex-encoded SHA-256 hash of a token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken checks a plaintext token against a stored hash in
// constant time. Empty input never matches.
func VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
