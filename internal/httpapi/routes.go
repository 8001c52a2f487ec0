package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
	"github.com/DoyleJ11/emoji-relay-backend/internal/ws"
)

func SetupRoutes(st store.Store, wsCfg ws.Config, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/games/{code}", GetGame(st, log))
	r.Get("/ws", ws.Handler(st, wsCfg, log))
	return r
}
