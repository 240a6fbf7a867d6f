package repository

import (
	"context"
	"database/sql"
	"time"

	"authsvc/internal/models"
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error

	// GetByTokenHash returns the session for a token hash if it has
	// not expired at the given instant.
	GetByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.Session, error)

	// DeleteByTokenHash removes a session. Deleting an absent session
	// is not an error; logout is idempotent.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteExpired removes sessions past their expiry and returns the
	// number deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, token_hash, username, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	return r.db.QueryRowContext(ctx, query, session.ID, session.TokenHash, session.Username, session.CreatedAt, session.ExpiresAt).Scan(&session.CreatedAt)
}

func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.Session, error) {
	query := `
		SELECT id, token_hash, username, created_at, expires_at
		FROM sessions
		WHERE token_hash = $1
		  AND expires_at > $2
	`

	var s models.Session
	err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(&s.ID, &s.TokenHash, &s.Username, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
