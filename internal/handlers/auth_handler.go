package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"authsvc/internal/auth"
	"authsvc/internal/config"
	"authsvc/internal/models"
	"authsvc/internal/repository"
	"authsvc/internal/services"
)

const minPasswordLength = 8

// reservedSubstrings are forbidden anywhere in a username,
// case-insensitively, to block privilege-implying names.
var reservedSubstrings = []string{"admin", "user"}

// dummyHash is a valid bcrypt hash compared against when the username
// does not exist, so the unknown-user and wrong-password paths cost the
// same. The corresponding password is never accepted.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type AuthHandler struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	mailer   services.EmailSender
	cfg      *config.Config
	v        *validator.Validate
	log      *slog.Logger
}

func NewAuthHandler(db *sql.DB, cfg *config.Config, mailer services.EmailSender, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:    repository.NewUserRepository(db),
		sessions: repository.NewSessionRepository(db),
		mailer:   mailer,
		cfg:      cfg,
		v:        validator.New(),
		log:      log,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid request body")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "username, email and password are required")
		return
	}

	if len(req.Password) < minPasswordLength {
		writeJSONError(w, http.StatusBadRequest, CodeWeakCredential, "Password must be at least 8 characters")
		return
	}

	lower := strings.ToLower(req.Username)
	for _, word := range reservedSubstrings {
		if strings.Contains(lower, word) {
			writeJSONError(w, http.StatusBadRequest, CodeReservedIdentity, "Username contains a reserved word")
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to create user")
		return
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeJSONError(w, http.StatusBadRequest, CodeIdentityTaken, "Username is already taken")
			return
		}
		h.log.Error("register: create user", "error", err)
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to create user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid request body")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "username and password are required")
		return
	}

	u, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn a compare so a missing account is not faster than a
			// wrong password.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
			writeJSONError(w, http.StatusUnauthorized, CodeAuthFailed, "Invalid username or password")
			return
		}
		h.log.Error("login: lookup user", "error", err)
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to log in")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		writeJSONError(w, http.StatusUnauthorized, CodeAuthFailed, "Invalid username or password")
		return
	}

	token, tokenHash, err := auth.GenerateToken()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to log in")
		return
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		TokenHash: tokenHash,
		Username:  u.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(h.cfg.SessionMaxAge),
	}
	if err := h.sessions.Create(r.Context(), session); err != nil {
		h.log.Error("login: create session", "error", err)
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to log in")
		return
	}

	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": u.Username})
}

func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cfg.SessionCookieName)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}

	session, err := h.sessions.GetByTokenHash(r.Context(), auth.HashToken(cookie.Value), time.Now().UTC())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.log.Error("status: lookup session", "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"loggedIn": true, "username": session.Username})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cfg.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.DeleteByTokenHash(r.Context(), auth.HashToken(cookie.Value)); err != nil {
			// Logout still succeeds; the session ages out.
			h.log.Error("logout: delete session", "error", err)
		}
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid request body")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "A valid email is required")
		return
	}

	token, tokenHash, err := auth.GenerateToken()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to start password reset")
		return
	}

	// Overwrites any outstanding token; only the latest is honored.
	expiresAt := time.Now().UTC().Add(h.cfg.ResetTokenTTL)
	if err := h.users.SetResetToken(r.Context(), req.Email, tokenHash, expiresAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, CodeIdentityNotFound, "No account with that email")
			return
		}
		h.log.Error("forgot-password: store token", "error", err)
		writeJSONError(w, http.StatusInternalServerError, CodeStorageError, "Failed to start password reset")
		return
	}

	link := services.BuildResetLink(h.cfg.BaseURL, token)
	subject, body := services.BuildResetMail(link)
	if err := h.mailer.Send(req.Email, subject, body); err != nil {
		// The stored token stays valid; requesting again issues a
		// fresh one and invalidates this one.
		h.log.Error("forgot-password: send mail", "error", err)
		writeJSONError(w, http.StatusInternalServerError, CodeDeliveryError, "Failed to send password reset email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password reset email sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid request body")
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "token and newPassword are required")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "newPassword must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to reset password")
		return
	}

	err = h.users.ConsumeResetToken(r.Context(), auth.HashToken(req.Token), string(hash), time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSONError(w, http.StatusBadRequest, CodeTokenInvalidOrExpired, "Reset token is invalid or expired")
			return
		}
		h.log.Error("reset-password: consume token", "error", err)
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password has been reset"})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cfg.Environment == "production",
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cfg.Environment == "production",
	})
}
