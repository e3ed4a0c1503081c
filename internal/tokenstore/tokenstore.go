// tokenstore ведёт учёт выданных токенов: хранит только их хэши,
// сроки действия и флаг active, что позволяет отзывать токены
// независимо от exp внутри JWT.
//
// Validate не различает «неизвестный», «истёкший» и «отозванный» токен:
// во всех случаях возвращается ErrTokenNotFound.
package tokenstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/emenu-auth/internal/cache"
	"github.com/pribylovaa/emenu-auth/internal/models"
	"github.com/pribylovaa/emenu-auth/internal/pkg/log"
	"github.com/pribylovaa/emenu-auth/internal/pkg/redact"
	"github.com/pribylovaa/emenu-auth/internal/storage"
)

// ErrTokenNotFound — нет активной неистёкшей записи для токена.
var ErrTokenNotFound = errors.New("token not found")

// Store — TokenStore поверх storage.TokenStorage с опциональным кэшем.
type Store struct {
	storage storage.TokenStorage
	hashKey []byte
	now     func() time.Time
	cache   cache.TokenCache // может быть nil, если кэш не сконфигурирован
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New создаёт Store. Пустой hashKey означает SHA-256 без ключа.
func New(st storage.TokenStorage, hashKey string, opts ...Option) *Store {
	s := &Store{
		storage: st,
		now:     time.Now,
	}
	if hashKey != "" {
		s.hashKey = []byte(hashKey)
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetCache устанавливает кэш записей (опционально).
func (s *Store) SetCache(c cache.TokenCache) {
	s.cache = c
}

// Hash возвращает хэш сырого токена в виде base64url без паддинга.
func (s *Store) Hash(raw string) string {
	var sum []byte
	if s.hashKey != nil {
		mac := hmac.New(sha256.New, s.hashKey)
		mac.Write([]byte(raw))
		sum = mac.Sum(nil)
	} else {
		h := sha256.Sum256([]byte(raw))
		sum = h[:]
	}

	return base64.RawURLEncoding.EncodeToString(sum)
}

// Issue сохраняет новую активную запись для пары токенов.
func (s *Store) Issue(ctx context.Context, userID int64, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) (*models.Token, error) {
	const op = "tokenstore.Issue"

	now := s.now().UTC()
	rec := &models.Token{
		UserID:           userID,
		AccessTokenHash:  s.Hash(accessToken),
		RefreshTokenHash: s.Hash(refreshToken),
		AccessExpiresAt:  now.Add(accessTTL),
		RefreshExpiresAt: now.Add(refreshTTL),
		Active:           true,
		CreatedAt:        now,
	}

	if err := s.storage.SaveToken(ctx, rec); err != nil {
		log.From(ctx).Error("token_issue_failed",
			slog.String("op", op),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// refresh-запись в кэше должна отражать самый поздний срок.
	// Ошибка записи только логируется: при промахе Validate читает хранилище.
	for _, kind := range []models.TokenKind{models.TokenAccess, models.TokenRefresh} {
		if err := s.cacheSet(ctx, kind, rec.HashFor(kind), rec, now); err != nil {
			log.From(ctx).Warn("token_cache_set_failed",
				slog.String("op", op),
				slog.String("kind", string(kind)),
				slog.String("err", err.Error()),
			)
		}
	}

	return rec, nil
}

// Validate возвращает user_id для активного неистёкшего токена типа kind.
func (s *Store) Validate(ctx context.Context, raw string, kind models.TokenKind) (int64, error) {
	const op = "tokenstore.Validate"

	lg := log.From(ctx)
	now := s.now().UTC()
	hash := s.Hash(raw)

	if s.cache != nil {
		e, ok, err := s.cache.Get(ctx, kind, hash)
		switch {
		case err != nil:
			lg.Warn("token_cache_get_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		case ok:
			if e.Active && now.Before(e.ExpiresAt) {
				return e.UserID, nil
			}

			return 0, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}
	}

	rec, err := s.storage.ActiveTokenByHash(ctx, kind, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Debug("token_not_found",
				slog.String("op", op),
				slog.String("kind", string(kind)),
				slog.String("token", redact.Token(raw)),
			)
			return 0, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}

		lg.Error("token_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if !rec.UsableAt(kind, now) {
		lg.Debug("token_expired",
			slog.String("op", op),
			slog.String("kind", string(kind)),
			slog.Int64("user_id", rec.UserID),
		)
		return 0, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}

	s.cacheFill(ctx, kind, hash, rec, now)

	return rec.UserID, nil
}

// Revoke деактивирует запись, найденную по хэшу access-токена, вместе с
// записями той же сессии. Отсутствие записи не является ошибкой.
//
// При включённом кэше все записи сессии помечаются в нём отозванными.
// Если пометить не удалось, возвращается ошибка: в хранилище сессия уже
// отозвана, а повторный Revoke снова пройдёт по всей сессии.
func (s *Store) Revoke(ctx context.Context, accessToken string) error {
	const op = "tokenstore.Revoke"

	lg := log.From(ctx)
	now := s.now().UTC()

	session, err := s.storage.RevokeByAccessHash(ctx, s.Hash(accessToken))
	if err != nil {
		lg.Error("token_revoke_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	if len(session) == 0 {
		lg.Debug("token_revoke_noop",
			slog.String("op", op),
			slog.String("token", redact.Token(accessToken)),
		)
		return nil
	}

	var cacheErrs []error
	for _, rec := range session {
		rec.Active = false
		for _, kind := range []models.TokenKind{models.TokenAccess, models.TokenRefresh} {
			if err := s.cacheSet(ctx, kind, rec.HashFor(kind), rec, now); err != nil {
				cacheErrs = append(cacheErrs, err)
			}
		}
	}

	if err := errors.Join(cacheErrs...); err != nil {
		lg.Error("token_revoke_cache_failed",
			slog.String("op", op),
			slog.Int64("user_id", session[0].UserID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("token_revoked",
		slog.String("op", op),
		slog.Int64("user_id", session[0].UserID),
		slog.Int("rows", len(session)),
	)

	return nil
}

// cacheSet перезаписывает состояние записи в кэше на оставшийся срок
// жизни токена. Истёкшие записи не кэшируются.
func (s *Store) cacheSet(ctx context.Context, kind models.TokenKind, hash string, rec *models.Token, now time.Time) error {
	if s.cache == nil {
		return nil
	}

	exp := rec.ExpiresFor(kind)
	ttl := exp.Sub(now)
	if ttl <= 0 {
		return nil
	}

	return s.cache.Set(ctx, kind, hash, &cache.TokenEntry{UserID: rec.UserID, Active: rec.Active, ExpiresAt: exp}, ttl)
}

// cacheFill кладёт прочитанную из хранилища запись в кэш, только если
// ключа там нет. Отметка отзыва, записанная Revoke во время чтения,
// сохраняется. Ошибки кэша не влияют на результат Validate.
func (s *Store) cacheFill(ctx context.Context, kind models.TokenKind, hash string, rec *models.Token, now time.Time) {
	if s.cache == nil {
		return
	}

	exp := rec.ExpiresFor(kind)
	ttl := exp.Sub(now)
	if ttl <= 0 {
		return
	}

	e := &cache.TokenEntry{UserID: rec.UserID, Active: rec.Active, ExpiresAt: exp}
	if _, err := s.cache.Fill(ctx, kind, hash, e, ttl); err != nil {
		log.From(ctx).Warn("token_cache_fill_failed",
			slog.String("op", "tokenstore.cacheFill"),
			slog.String("err", err.Error()),
		)
	}
}
