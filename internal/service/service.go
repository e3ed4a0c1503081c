// service содержит бизнес-логику аутентификации: login, refresh, logout
// и проверку bearer-токена для защищённых маршрутов.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для
//     конкурентного использования, если потокобезопасны его зависимости.
//   - Ошибки возвращаются как sentinel-значения ниже и маппятся
//     транспортом на HTTP-статусы (см. комментарии к переменным).
package service

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/emenu-auth/internal/config"
	"github.com/pribylovaa/emenu-auth/internal/metrics"
	"github.com/pribylovaa/emenu-auth/internal/models"
	"github.com/pribylovaa/emenu-auth/internal/token"
)

var (
	// ErrInvalidCredentials — неизвестный логин или неверный пароль (HTTP 401).
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidOrExpiredRefreshToken — refresh-токен неизвестен, истёк или
	// отозван; причины не различаются (HTTP 401).
	ErrInvalidOrExpiredRefreshToken = errors.New("invalid or expired refresh token")

	// ErrMissingToken — logout без заголовка Authorization (HTTP 400).
	ErrMissingToken = errors.New("access token missing")

	// ErrMissingOrMalformedHeader — нет заголовка Authorization или он
	// не начинается с "Bearer " (HTTP 401).
	ErrMissingOrMalformedHeader = errors.New("missing or malformed authorization header")

	// ErrTokenExpired — срок действия access-токена истёк (HTTP 401).
	ErrTokenExpired = errors.New("token expired")

	// ErrMalformedToken — подпись или структура токена неверны (HTTP 401).
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidToken — токен корректно подписан, но не годится: не тот тип,
	// отозван или пользователя больше нет (HTTP 401).
	ErrInvalidToken = errors.New("invalid token")
)

// Названия событий для метрик.
const (
	eventLogin        = "login"
	eventRefresh      = "refresh"
	eventLogout       = "logout"
	eventAuthenticate = "authenticate"
)

// Codec подписывает и проверяет токены.
type Codec interface {
	Sign(userID int64, kind models.TokenKind, ttl time.Duration) (string, time.Time, error)
	Verify(raw string) (*token.Claims, error)
}

// TokenStore учитывает выданные токены по хэшу.
type TokenStore interface {
	Issue(ctx context.Context, userID int64, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) (*models.Token, error)
	Validate(ctx context.Context, raw string, kind models.TokenKind) (int64, error)
	Revoke(ctx context.Context, accessToken string) error
}

// Directory — справочник пользователей.
type Directory interface {
	Authenticate(ctx context.Context, login, password string) (*models.Identity, error)
	UserByID(ctx context.Context, id int64) (*models.Identity, error)
}

// Service описывает бизнес-логику аутентификации.
type Service struct {
	codec   Codec
	store   TokenStore
	dir     Directory
	cfg     config.AuthConfig
	metrics *metrics.Metrics // может быть nil
}

// New создаёт новый экземпляр Service.
func New(codec Codec, store TokenStore, dir Directory, cfg config.AuthConfig) *Service {
	return &Service{
		codec: codec,
		store: store,
		dir:   dir,
		cfg:   cfg,
	}
}

// SetMetrics подключает учёт событий (опционально).
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}
