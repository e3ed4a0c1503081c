package handlers

import (
	"net/http"
	"strings"

	"github.com/pribylovaa/emenu-auth/internal/service"
	apierrors "github.com/pribylovaa/emenu-auth/internal/transport/http/errors"
	"github.com/pribylovaa/emenu-auth/internal/transport/http/middleware"
)

const tokenTypeBearer = "Bearer"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type meResponse struct {
	UserID int64  `json:"user_id"`
	Login  string `json:"login"`
}

// Login — POST /api/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil || in.Username == "" || in.Password == "" {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	pair, err := h.Auth.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// Refresh — POST /api/refresh. Пустой refresh_token отклоняется сервисом
// как недействительный, а не как ошибка формата.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeJSON(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	pair, err := h.Auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: pair.AccessToken,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   pair.ExpiresIn,
	})
}

// Logout — POST /api/logout. Префикс "Bearer " снимается, если есть;
// отсутствующий заголовок даёт 400 missing_token.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if raw == "" {
		apierrors.WriteError(w, r, service.ErrMissingToken)
		return
	}

	if err := h.Auth.Logout(r.Context(), raw); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Successfully logged out"})
}

// Me — GET /api/me, доступен только за RequireAuth.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrMissingOrMalformedHeader)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{UserID: id.UserID, Login: id.Login})
}
