package models

import "time"

// Session is the server-side record behind the opaque cookie token.
// Only the SHA-256 hash of the token is stored; the plaintext lives in
// the client's cookie and nowhere else.
type Session struct {
	ID        string
	TokenHash string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}
