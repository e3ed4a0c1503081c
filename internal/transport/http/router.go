package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/emenu-auth/internal/metrics"
	"github.com/pribylovaa/emenu-auth/internal/transport/http/handlers"
	"github.com/pribylovaa/emenu-auth/internal/transport/http/middleware"
)

// AuthService — всё, что роутеру нужно от service.Service.
type AuthService interface {
	handlers.AuthService
	middleware.Authenticator
}

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	Metrics *metrics.Metrics // nil — без инструментирования
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc AuthService, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		opts.Metrics.Middleware,         // счётчики по шаблону маршрута
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc)

	root.Route("/api", func(r chi.Router) {
		registerRoutes(r, h, middleware.RequireAuth(svc))
	})

	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, requireAuth middleware.Middleware) {
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)

	r.With(requireAuth).Get("/me", h.Me)
}
