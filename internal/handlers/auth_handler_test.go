package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"authsvc/internal/auth"
	"authsvc/internal/config"
)

type captureMailer struct {
	to      string
	subject string
	body    string
	sent    int
	err     error
}

func (m *captureMailer) Send(to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.to = to
	m.subject = subject
	m.body = body
	m.sent++
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:       "test",
		BaseURL:           "http://localhost:8080",
		SessionCookieName: "session",
		SessionMaxAge:     time.Hour,
		ResetTokenTTL:     30 * time.Minute,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T) (*AuthHandler, sqlmock.Sqlmock, *captureMailer, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	mailer := &captureMailer{}
	h := NewAuthHandler(db, testConfig(), mailer, testLogger())
	return h, mock, mailer, func() { db.Close() }
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(b))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestRegisterSuccess(t *testing.T) {
	h, mock, _, cleanup := newTestHandler(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "alice", "a@x.com", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))

	w := postJSON(t, h.Register, "/api/register", map[string]any{
		"username": "alice",
		"email":    "a@x.com",
		"password": "longpassword1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["success"] != true {
		t.Fatalf("expected success=true got %v", resp)
	}
	if _, ok := resp["password"]; ok {
		t.Fatalf("response must not echo credentials: %v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRegisterWeakPasswordPerformsNoWrite(t *testing.T) {
	h, mock, _, cleanup := newTestHandler(t)
	defer cleanup()

	// No DB expectations set: any query fails the test.
	w := postJSON(t, h.Register, "/api/register", map[string]any{
		"username": "alice",
		"email":    "a@x.com",
		"password": "short",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["error"] != CodeWeakCredential {
		t.Fatalf("expected WEAK_CREDENTIAL got %v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRegisterReservedUsername(t *testing.T) {
	h, _, _, cleanup := newTestHandler(t)
	defer cleanup()

	for _, name := range []string{"admin", "SuperAdmin", "poweruser", "UserOne"} {
		w := postJSON(t, h.Register, "/api/register", map[string]any{
			"username": name,
			"email":    "a@x.com",
			"password": "longpassword1",
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, w.Code)
		}
		if resp := decodeBody(t, w); resp["error"] != CodeReservedIdentity {
			t.Fatalf("%s: expected RESERVED_IDENTITY got %v", name, resp)
		}
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	h, mock, _, cleanup := newTestHandler(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})

	w := postJSON(t, h.Register, "/api/register", map[string]any{
		"username": "alice",
		"email":    "a@x.com",
		"password": "longpassword1",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["error"] != CodeIdentityTaken {
		t.Fatalf("expected IDENTITY_TAKEN got %v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func userRow(t *testing.T, username, email, password string) *sqlmock.Rows {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword: %v", err)
	}
	return sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "reset_token_hash", "reset_token_expires_at", "created_at"}).
		AddRow("u1", username, email, string(hash), nil, nil, time.Now().UTC())
}

func TestLoginSuccessSetsSessionCookie(t *testing.T) {
	h, mock, _, cleanup := newTestHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, username, email, password_hash, reset_token_hash, reset_token_expires_at, created_at\s+FROM users\s+WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(userRow(t, "alice", "a@x.com", "longpassword1"))

	mock.ExpectQuery("INSERT INTO sessions").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))

	w := postJSON(t, h.Login, "/api/login", map[string]any{
		"username": "alice",
		"password": "longpassword1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["success"] != true || resp["username"] != "alice" {
		t.Fatalf("unexpected body: %v", resp)
	}

	cookies := w.Result().Cookies()
	var session *http.Cookie
	for _, c := range cookies {
		if c.Name == "session" {
			session = c
		}
	}
	if session == nil {
		t.Fatalf("expected session cookie, got %v", cookies)
	}
	if session.Value == "" || !session.HttpOnly {
		t.Fatalf("session cookie must be non-empty and HttpOnly: %+v", session)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoginFailureShapeIsUniform(t *testing.T) {
	h, mock, _, cleanup := newTestHandler(t)
	defer cleanup()

	selectUser := `SELECT id, username, email, password_hash, reset_token_hash, reset_token_expires_at, created_at\s+FROM users\s+WHERE username = \$1`

	// Unknown username.
	mock.ExpectQuery(selectUser).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	wMissing := postJSON(t, h.Login, "/api/login", map[string]any{
		"username": "ghost", "password": "whatever12",
	})

	// Known username, wrong password.
	mock.ExpectQuery(selectUser).WithArgs("alice").WillReturnRows(userRow(t, "alice", "a@x.com", "longpassword1"))
	wWrong := postJSON(t, h.Login, "/api/login", map[string]any{
		"username": "alice", "password": "wrongpassword",
	})

	for _, w := range []*httptest.ResponseRecorder{wMissing, wWrong} {
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 got %d (%s)", w.Code, w.Body.String())
		}
	}
	if wMissing.Body.String() != wWrong.Body.String() {
		t.Fatalf("failure bodies must be indistinguishable:\n%s\n%s", wMissing.Body.String(), wWrong.Body.String())
	}
	if resp := decodeBody(t, wWrong); resp["error"] != CodeAuthFailed {
		t.Fatalf("expected AUTH_FAILED got %v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatusWithoutCookie(t *testing.T) {
	h, _, _, cleanup := newTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	h.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if resp := decodeBody(t, w); resp["loggedIn"] != false {
		t.Fatalf("expected loggedIn=false got %v", resp)
	}
}

func TestStatusWithActiveSession(t *testing.T) {
	h, mock, _, cleanup := newTestHandler(t)
	defer cleanup()

	token := "sometoken"
	mock.ExpectQuery(`SELECT id, token_hash, username, created_at, expires_at\s+FROM sessions`).
		WithArgs(auth.HashToken(token), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token_hash", "username", "created_at", "expires_at"}).
			AddRow("s1", auth.HashToken(token), "alice", time.Now().UTC(), time.Now().UTC().Add(time.Hour)))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	w := httptest.NewRecorder()
	h.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["loggedIn"] != true || resp["username"] != "alice" {
		t.Fatalf("unexpected body: %v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatusWithExpiredSession(t *testing.T) {
	h, mock, _, cleanup := newTestHandler(t)
	defer cleanup()

	// The expiry-checked lookup matches no row.
	mock.ExpectQuery(`SELECT id, token_hash, username, created_at, expires_at\s+FROM sessions`).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "stale"})
	w := httptest.NewRecorder()
	h.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if resp := decodeBody(t, w); resp["loggedIn"] != false {
		t.Fatalf("expected loggedIn=false got %v", resp)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	h, mock, _, cleanup := newTestHandler(t)
	defer cleanup()

	// With a cookie: the session row is deleted and the cookie cleared.
	mock.ExpectExec("DELETE FROM sessions WHERE token_hash").
		WithArgs(auth.HashToken("tok")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodGet, "/api/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "tok"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("expected session cookie to be cleared")
	}

	// Without a cookie: still 200, no DB traffic.
	req = httptest.NewRequest(http.MethodGet, "/api/logout", nil)
	w = httptest.NewRecorder()
	h.Logout(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestForgotPasswordStoresTokenAndSendsLink(t *testing.T) {
	h, mock, mailer, cleanup := newTestHandler(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE users\s+SET reset_token_hash = \$1, reset_token_expires_at = \$2\s+WHERE email = \$3`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "a@x.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := postJSON(t, h.ForgotPassword, "/api/forgot-password", map[string]any{"email": "a@x.com"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", w.Code, w.Body.String())
	}
	if mailer.sent != 1 {
		t.Fatalf("expected one mail, got %d", mailer.sent)
	}
	if mailer.to != "a@x.com" {
		t.Fatalf("mail sent to %q", mailer.to)
	}
	if !strings.Contains(mailer.body, "http://localhost:8080/reset-password.html?token=") {
		t.Fatalf("mail body missing reset link: %s", mailer.body)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	h, mock, mailer, cleanup := newTestHandler(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE users\s+SET reset_token_hash`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := postJSON(t, h.ForgotPassword, "/api/forgot-password", map[string]any{"email": "nobody@x.com"})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["error"] != CodeIdentityNotFound {
		t.Fatalf("expected IDENTITY_NOT_FOUND got %v", resp)
	}
	if mailer.sent != 0 {
		t.Fatal("no mail may be sent for an unknown email")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestForgotPasswordDeliveryError(t *testing.T) {
	h, mock, mailer, cleanup := newTestHandler(t)
	defer cleanup()
	mailer.err = errors.New("smtp timeout")

	mock.ExpectExec(`UPDATE users\s+SET reset_token_hash`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := postJSON(t, h.ForgotPassword, "/api/forgot-password", map[string]any{"email": "a@x.com"})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["error"] != CodeDeliveryError {
		t.Fatalf("expected DELIVERY_ERROR got %v", resp)
	}

	// The token was persisted before the send failed; a fresh request
	// recovers by overwriting it.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestForgotPasswordStorageError(t *testing.T) {
	h, mock, mailer, cleanup := newTestHandler(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE users\s+SET reset_token_hash`).
		WillReturnError(errors.New("connection reset"))

	w := postJSON(t, h.ForgotPassword, "/api/forgot-password", map[string]any{"email": "a@x.com"})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["error"] != CodeStorageError {
		t.Fatalf("expected STORAGE_ERROR got %v", resp)
	}
	if mailer.sent != 0 {
		t.Fatal("no mail may be sent when the token was not stored")
	}
}

func TestResetPasswordSuccess(t *testing.T) {
	h, mock, _, cleanup := newTestHandler(t)
	defer cleanup()

	token := "raw-reset-token"
	mock.ExpectExec(`UPDATE users\s+SET password_hash = \$1, reset_token_hash = NULL, reset_token_expires_at = NULL\s+WHERE reset_token_hash = \$2`).
		WithArgs(sqlmock.AnyArg(), auth.HashToken(token), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := postJSON(t, h.ResetPassword, "/api/reset-password", map[string]any{
		"token":       token,
		"newPassword": "newpassword2",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["success"] != true {
		t.Fatalf("expected success=true got %v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResetPasswordMissingInput(t *testing.T) {
	h, _, _, cleanup := newTestHandler(t)
	defer cleanup()

	for _, payload := range []map[string]any{
		{"token": "", "newPassword": "newpassword2"},
		{"token": "tok", "newPassword": ""},
		{},
	} {
		w := postJSON(t, h.ResetPassword, "/api/reset-password", payload)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d (%s)", w.Code, w.Body.String())
		}
		if resp := decodeBody(t, w); resp["error"] != CodeInvalidInput {
			t.Fatalf("expected INVALID_INPUT got %v", resp)
		}
	}
}

func TestResetPasswordTokenInvalidOrConsumed(t *testing.T) {
	h, mock, _, cleanup := newTestHandler(t)
	defer cleanup()

	// Never-issued, already-consumed, superseded, and expired tokens
	// all hit the same zero-rows path.
	mock.ExpectExec(`UPDATE users\s+SET password_hash`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := postJSON(t, h.ResetPassword, "/api/reset-password", map[string]any{
		"token":       "consumed-or-bogus",
		"newPassword": "newpassword2",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["error"] != CodeTokenInvalidOrExpired {
		t.Fatalf("expected TOKEN_INVALID_OR_EXPIRED got %v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
