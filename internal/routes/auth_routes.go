package routes

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"authsvc/internal/config"
	"authsvc/internal/handlers"
	"authsvc/internal/services"
)

func RegisterAuthRoutes(router chi.Router, db *sql.DB, cfg *config.Config, log *slog.Logger) {
	mailer := &services.SMTPSender{
		Host:    cfg.SMTPHost,
		Port:    cfg.SMTPPort,
		User:    cfg.SMTPUser,
		Pass:    cfg.SMTPPassword,
		From:    cfg.SMTPFrom,
		UseTLS:  cfg.SMTPUseTLS,
		Timeout: cfg.SMTPTimeout,
	}
	authHandler := handlers.NewAuthHandler(db, cfg, mailer, log)

	router.Post("/register", authHandler.Register)
	router.Post("/login", authHandler.Login)
	router.Get("/status", authHandler.Status)
	router.Get("/logout", authHandler.Logout)
	router.Post("/forgot-password", authHandler.ForgotPassword)
	router.Post("/reset-password", authHandler.ResetPassword)
}
