package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/emenu-auth/internal/directory"
	"github.com/pribylovaa/emenu-auth/internal/metrics"
	"github.com/pribylovaa/emenu-auth/internal/models"
	"github.com/pribylovaa/emenu-auth/internal/pkg/log"
	"github.com/pribylovaa/emenu-auth/internal/pkg/redact"
	"github.com/pribylovaa/emenu-auth/internal/storage"
	"github.com/pribylovaa/emenu-auth/internal/token"
	"github.com/pribylovaa/emenu-auth/internal/tokenstore"
)

// Login проверяет учётные данные и выпускает пару access+refresh.
func (s *Service) Login(ctx context.Context, login, password string) (*models.TokenPair, error) {
	const op = "service.auth.Login"

	lg := log.From(ctx)

	id, err := s.dir.Authenticate(ctx, login, password)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidCredentials) {
			lg.Info("login_rejected",
				slog.String("op", op),
				slog.String("login", redact.Login(login)),
			)
			s.metrics.AuthEvent(eventLogin, metrics.OutcomeRejected)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		s.metrics.AuthEvent(eventLogin, metrics.OutcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issuePair(ctx, id.UserID, "")
	if err != nil {
		s.metrics.AuthEvent(eventLogin, metrics.OutcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("login_ok",
		slog.String("op", op),
		slog.Int64("user_id", id.UserID),
	)
	s.metrics.AuthEvent(eventLogin, metrics.OutcomeOK)

	return pair, nil
}

// Refresh выпускает новый access-токен по refresh-токену.
// Новая запись TokenStore связывает новый access-токен с тем же
// refresh-токеном; предыдущая запись остаётся активной до своего срока.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	const op = "service.auth.Refresh"

	lg := log.From(ctx)

	if refreshToken == "" {
		s.metrics.AuthEvent(eventRefresh, metrics.OutcomeRejected)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredRefreshToken)
	}

	uid, err := s.store.Validate(ctx, refreshToken, models.TokenRefresh)
	if err != nil {
		if errors.Is(err, tokenstore.ErrTokenNotFound) {
			lg.Info("refresh_rejected",
				slog.String("op", op),
				slog.String("token", redact.Token(refreshToken)),
			)
			s.metrics.AuthEvent(eventRefresh, metrics.OutcomeRejected)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredRefreshToken)
		}

		s.metrics.AuthEvent(eventRefresh, metrics.OutcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.dir.UserByID(ctx, uid); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Info("refresh_user_gone",
				slog.String("op", op),
				slog.Int64("user_id", uid),
			)
			s.metrics.AuthEvent(eventRefresh, metrics.OutcomeRejected)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredRefreshToken)
		}

		s.metrics.AuthEvent(eventRefresh, metrics.OutcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issuePair(ctx, uid, refreshToken)
	if err != nil {
		s.metrics.AuthEvent(eventRefresh, metrics.OutcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("refresh_ok",
		slog.String("op", op),
		slog.Int64("user_id", uid),
	)
	s.metrics.AuthEvent(eventRefresh, metrics.OutcomeOK)

	return pair, nil
}

// Logout отзывает запись, найденную по access-токену. Неизвестный или
// уже отозванный токен не является ошибкой.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	const op = "service.auth.Logout"

	if accessToken == "" {
		s.metrics.AuthEvent(eventLogout, metrics.OutcomeRejected)
		return fmt.Errorf("%s: %w", op, ErrMissingToken)
	}

	if err := s.store.Revoke(ctx, accessToken); err != nil {
		s.metrics.AuthEvent(eventLogout, metrics.OutcomeError)
		return fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.AuthEvent(eventLogout, metrics.OutcomeOK)

	return nil
}

// Authenticate проверяет access-токен и возвращает идентичность пользователя.
// Если не включён режим JWTOnly, токен дополнительно сверяется с TokenStore.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.Identity, error) {
	const op = "service.auth.Authenticate"

	id, err := s.authenticate(ctx, accessToken)
	if err != nil {
		outcome := metrics.OutcomeRejected
		if !isAuthFailure(err) {
			outcome = metrics.OutcomeError
		}
		s.metrics.AuthEvent(eventAuthenticate, outcome)

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.AuthEvent(eventAuthenticate, metrics.OutcomeOK)

	return id, nil
}

func (s *Service) authenticate(ctx context.Context, accessToken string) (*models.Identity, error) {
	lg := log.From(ctx)

	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			return nil, ErrTokenExpired
		}

		lg.Debug("access_token_malformed",
			slog.String("token", redact.Token(accessToken)),
		)
		return nil, ErrMalformedToken
	}

	if claims.Type != models.TokenAccess {
		lg.Info("access_token_wrong_type",
			slog.String("type", string(claims.Type)),
			slog.Int64("user_id", claims.UserID),
		)
		return nil, ErrInvalidToken
	}

	if !s.cfg.JWTOnly {
		uid, err := s.store.Validate(ctx, accessToken, models.TokenAccess)
		if err != nil {
			if errors.Is(err, tokenstore.ErrTokenNotFound) {
				lg.Info("access_token_not_active",
					slog.Int64("user_id", claims.UserID),
				)
				return nil, ErrInvalidToken
			}

			return nil, err
		}

		if uid != claims.UserID {
			lg.Warn("access_token_user_mismatch",
				slog.Int64("claims_user_id", claims.UserID),
				slog.Int64("store_user_id", uid),
			)
			return nil, ErrInvalidToken
		}
	}

	id, err := s.dir.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Info("access_token_user_gone",
				slog.Int64("user_id", claims.UserID),
			)
			return nil, ErrInvalidToken
		}

		return nil, err
	}

	return id, nil
}

// issuePair подписывает access-токен и, если refreshToken пуст, новый
// refresh-токен, после чего сохраняет запись в TokenStore.
func (s *Service) issuePair(ctx context.Context, userID int64, refreshToken string) (*models.TokenPair, error) {
	const op = "service.auth.issuePair"

	access, accessExp, err := s.codec.Sign(userID, models.TokenAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if refreshToken == "" {
		refreshToken, _, err = s.codec.Sign(userID, models.TokenRefresh, s.cfg.RefreshTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if _, err := s.store.Issue(ctx, userID, access, refreshToken, s.cfg.AccessTokenTTL, s.cfg.RefreshTokenTTL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     access,
		RefreshToken:    refreshToken,
		AccessExpiresAt: accessExp,
		ExpiresIn:       int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func isAuthFailure(err error) bool {
	return errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrInvalidToken)
}
