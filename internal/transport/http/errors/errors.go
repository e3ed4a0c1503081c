// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает доменную ошибку сервиса, на выход даёт:
//   - корректный HTTP-статус;
//   - стабильный машиночитаемый code;
//   - краткое безопасное message без утечки деталей.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/emenu-auth/internal/service"
)

// ErrInvalidArgument — тело запроса не разобрано или не хватает полей.
var ErrInvalidArgument = stderrors.New("invalid argument")

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError — единый формат ошибки для клиента.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и тело ответа.
// err == nil и неизвестные ошибки дают 500/internal.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)
	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError пишет статус и тело, добавляя request_id из заголовка.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case stderrors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case stderrors.Is(err, service.ErrMissingToken):
		return http.StatusBadRequest, "missing_token", "Access token missing"
	case stderrors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid username or password"
	case stderrors.Is(err, service.ErrInvalidOrExpiredRefreshToken):
		return http.StatusUnauthorized, "invalid_refresh_token", "Invalid or expired refresh token"
	case stderrors.Is(err, service.ErrMissingOrMalformedHeader):
		return http.StatusUnauthorized, "missing_or_malformed_header", "Missing or invalid Authorization header"
	case stderrors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired", "Token has expired"
	case stderrors.Is(err, service.ErrMalformedToken):
		return http.StatusUnauthorized, "malformed_token", "Malformed token"
	case stderrors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token", "Invalid token"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
