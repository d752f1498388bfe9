package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/entity"
)

type roomLookup interface {
	GetRoom(ctx context.Context, code string) (*entity.Room, error)
}

// NewRouter - health check and read-only room lookup.
func NewRouter(logger *slog.Logger, rooms roomLookup) http.Handler {
	handler := &roomHandler{
		logger: logger.With("component", "rest"),
		rooms:  rooms,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/ping", pingHandler)
	router.Get("/rooms/{code}", handler.getRoom)

	return router
}

func Start(port string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
