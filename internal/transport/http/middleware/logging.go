package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/emenu-auth/internal/pkg/httpx"
	logctx "github.com/pribylovaa/emenu-auth/internal/pkg/log"
)

// Logging кладёт request-scoped логгер в контекст и пишет итоговую запись.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := l.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			if rid := r.Header.Get("X-Request-Id"); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}
			r = r.WithContext(logctx.Into(r.Context(), reqLogger))

			rec := httpx.NewRecorder(w)
			start := time.Now()
			next.ServeHTTP(rec, r)

			logctx.From(r.Context()).LogAttrs(r.Context(), slog.LevelInfo, "http",
				slog.Int("status", rec.Status()),
				slog.Duration("dur", time.Since(start)),
				slog.Int("bytes", rec.Bytes()),
			)
		})
	}
}
