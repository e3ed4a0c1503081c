package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	logctx "github.com/pribylovaa/emenu-auth/internal/pkg/log"
	apierrors "github.com/pribylovaa/emenu-auth/internal/transport/http/errors"
)

// Recover перехватывает panic и отвечает 500/internal.
// Детали паники не утекают на клиент.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logctx.From(r.Context()).
						LogAttrs(r.Context(), slog.LevelError, "panic",
							slog.String("path", r.URL.Path),
							slog.Any("reason", rec),
						)
					apierrors.WriteError(w, r, errors.New("internal"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
