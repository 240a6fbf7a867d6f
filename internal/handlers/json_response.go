package handlers

import (
	"encoding/json"
	"net/http"
)

// API error codes. Validation failures are client-correctable (4xx);
// storage and delivery failures are reported generically (5xx) with
// detail kept in the server log.
const (
	CodeInvalidInput          = "INVALID_INPUT"
	CodeWeakCredential        = "WEAK_CREDENTIAL"
	CodeIdentityTaken         = "IDENTITY_TAKEN"
	CodeReservedIdentity      = "RESERVED_IDENTITY"
	CodeAuthFailed            = "AUTH_FAILED"
	CodeIdentityNotFound      = "IDENTITY_NOT_FOUND"
	CodeStorageError          = "STORAGE_ERROR"
	CodeDeliveryError         = "DELIVERY_ERROR"
	CodeTokenInvalidOrExpired = "TOKEN_INVALID_OR_EXPIRED"
	CodeServerError           = "SERVER_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error":   code,
		"message": message,
	})
}
