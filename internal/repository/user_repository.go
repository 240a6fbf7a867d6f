package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"authsvc/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, username string, passwordHash string) error

	// SetResetToken stores a new reset token hash and expiry on the
	// user matching the email, replacing any outstanding token.
	SetResetToken(ctx context.Context, email string, tokenHash string, expiresAt time.Time) error

	// ConsumeResetToken sets the new password hash and clears the
	// reset token in one conditional update. Exactly one of any number
	// of racing calls with the same token can succeed; the rest get
	// ErrNotFound. Expired tokens never match.
	ConsumeResetToken(ctx context.Context, tokenHash string, newPasswordHash string, now time.Time) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const uniqueViolation = "23505"

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt).Scan(&user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, reset_token_hash, reset_token_expires_at, created_at
		FROM users
		WHERE username = $1
	`

	return r.scanOne(ctx, query, username)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, reset_token_hash, reset_token_expires_at, created_at
		FROM users
		WHERE email = $1
		LIMIT 1
	`

	return r.scanOne(ctx, query, email)
}

func (r *userRepository) scanOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	var tokenHash sql.NullString
	var tokenExpires sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &tokenHash, &tokenExpires, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if tokenHash.Valid {
		u.ResetTokenHash = &tokenHash.String
	}
	if tokenExpires.Valid {
		u.ResetTokenExpiresAt = &tokenExpires.Time
	}
	return &u, nil
}

func (r *userRepository) UpdatePasswordHash(ctx context.Context, username string, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1 WHERE username = $2`
	res, err := r.db.ExecContext(ctx, query, passwordHash, username)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) SetResetToken(ctx context.Context, email string, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET reset_token_hash = $1, reset_token_expires_at = $2
		WHERE email = $3
	`

	res, err := r.db.ExecContext(ctx, query, tokenHash, expiresAt, email)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) ConsumeResetToken(ctx context.Context, tokenHash string, newPasswordHash string, now time.Time) error {
	// Single statement so two racing confirms cannot both consume the
	// token: the loser sees zero rows affected.
	query := `
		UPDATE users
		SET password_hash = $1, reset_token_hash = NULL, reset_token_expires_at = NULL
		WHERE reset_token_hash = $2
		  AND reset_token_expires_at > $3
	`

	res, err := r.db.ExecContext(ctx, query, newPasswordHash, tokenHash, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
