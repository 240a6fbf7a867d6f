package routes

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"authsvc/internal/config"
	"authsvc/internal/handlers"
	"authsvc/internal/middleware"
	"authsvc/internal/repository"
)

func RegisterAccountRoutes(router chi.Router, db *sql.DB, cfg *config.Config, log *slog.Logger) {
	sessions := repository.NewSessionRepository(db)
	accountHandler := handlers.NewAccountHandler(db, log)

	router.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(cfg.SessionCookieName, sessions))
		r.Post("/change-password", accountHandler.ChangePassword)
	})
}
