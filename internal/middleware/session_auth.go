package middleware

import (
	"context"
	"net/http"
	"time"

	"authsvc/internal/auth"
	"authsvc/internal/repository"
)

type ctxKey string

const ctxUsername ctxKey = "username"

// SessionAuth resolves the session cookie against the session store and
// rejects requests without an active session. The authenticated
// username is placed on the request context.
func SessionAuth(cookieName string, sessions repository.SessionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "Missing session", http.StatusUnauthorized)
				return
			}

			session, err := sessions.GetByTokenHash(r.Context(), auth.HashToken(cookie.Value), time.Now().UTC())
			if err != nil {
				http.Error(w, "Invalid session", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxUsername, session.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UsernameFromContext returns the username set by SessionAuth.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(ctxUsername).(string)
	return username, ok && username != ""
}

// WithUsername returns a context carrying an authenticated username,
// as SessionAuth would set it.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ctxUsername, username)
}
