package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pribylovaa/emenu-auth/internal/models"
)

// maxBodyBytes ограничивает тело JSON-запросов.
const maxBodyBytes = 1 << 20

// AuthService — операции AuthService, нужные HTTP-слою.
type AuthService interface {
	Login(ctx context.Context, login, password string) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
}

// Handlers агрегирует зависимости хендлеров.
type Handlers struct {
	Auth AuthService
}

func New(auth AuthService) *Handlers {
	return &Handlers{Auth: auth}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeJSON читает тело с ограничением размера. Лишние ключи
// игнорируются: клиенты шлют в login/refresh дополнительные поля.
func decodeJSON(w http.ResponseWriter, r *http.Request, value any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(value)
}
