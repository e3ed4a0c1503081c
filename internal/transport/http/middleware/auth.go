package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pribylovaa/emenu-auth/internal/models"
	logctx "github.com/pribylovaa/emenu-auth/internal/pkg/log"
	"github.com/pribylovaa/emenu-auth/internal/service"
	apierrors "github.com/pribylovaa/emenu-auth/internal/transport/http/errors"
)

const bearerPrefix = "Bearer "

type identityKey struct{}

// Authenticator проверяет access-токен и возвращает идентичность.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.Identity, error)
}

// RequireAuth пропускает запрос только с валидным Bearer access-токеном и
// кладёт идентичность пользователя в контекст (см. IdentityFrom).
func RequireAuth(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				apierrors.WriteError(w, r, service.ErrMissingOrMalformedHeader)
				return
			}

			id, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, id)
			ctx = logctx.With(ctx, slog.Int64("user_id", id.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken извлекает токен из "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, bearerPrefix) {
		return "", false
	}

	raw := strings.TrimSpace(h[len(bearerPrefix):])
	if raw == "" {
		return "", false
	}

	return raw, true
}

// IdentityFrom возвращает идентичность, положенную RequireAuth.
func IdentityFrom(ctx context.Context) (*models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*models.Identity)
	return id, ok && id != nil
}
