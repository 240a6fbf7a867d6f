package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"authsvc/internal/middleware"
	"authsvc/internal/models"
	"authsvc/internal/repository"
)

// AccountHandler serves session-protected account operations.
type AccountHandler struct {
	users repository.UserRepository
	log   *slog.Logger
}

func NewAccountHandler(db *sql.DB, log *slog.Logger) *AccountHandler {
	return &AccountHandler{
		users: repository.NewUserRepository(db),
		log:   log,
	}
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, CodeAuthFailed, "Not logged in")
		return
	}

	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid request body")
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidInput, "oldPassword and newPassword are required")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeJSONError(w, http.StatusBadRequest, CodeWeakCredential, "newPassword must be at least 8 characters")
		return
	}

	u, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		h.log.Error("change-password: lookup user", "error", err)
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to change password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)); err != nil {
		writeJSONError(w, http.StatusUnauthorized, CodeAuthFailed, "Current password is incorrect")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to change password")
		return
	}

	if err := h.users.UpdatePasswordHash(r.Context(), username, string(hash)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSONError(w, http.StatusUnauthorized, CodeAuthFailed, "Not logged in")
			return
		}
		h.log.Error("change-password: update hash", "error", err)
		writeJSONError(w, http.StatusInternalServerError, CodeServerError, "Failed to change password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated"})
}
