// memory — потокобезопасная in-process реализация storage.Storage.
// Используется драйвером "memory" (локальный запуск) и в тестах.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pribylovaa/emenu-auth/internal/models"
	"github.com/pribylovaa/emenu-auth/internal/storage"
)

// Storage хранит пользователей и записи токенов в памяти процесса.
type Storage struct {
	mu      sync.RWMutex
	users   map[int64]*models.User
	logins  map[string]int64
	tokens  []*models.Token
	nextUID int64
	nextTID int64
	now     func() time.Time
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		users:  make(map[int64]*models.User),
		logins: make(map[string]int64),
		now:    time.Now,
	}
}

// SaveUser создаёт пользователя; логин уникален.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logins[user.Login]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	s.nextUID++
	user.ID = s.nextUID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	cp := *user
	s.users[cp.ID] = &cp
	s.logins[cp.Login] = cp.ID

	return nil
}

// UserByLogin находит пользователя по логину.
func (s *Storage) UserByLogin(ctx context.Context, login string) (*models.User, error) {
	const op = "storage.memory.UserByLogin"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.logins[login]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *s.users[id]
	return &cp, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.memory.UserByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *u
	return &cp, nil
}

// DeleteUser удаляет пользователя. Записи токенов остаются.
func (s *Storage) DeleteUser(ctx context.Context, id int64) error {
	const op = "storage.memory.DeleteUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	delete(s.logins, u.Login)
	delete(s.users, id)

	return nil
}

// SaveToken вставляет новую запись.
func (s *Storage) SaveToken(ctx context.Context, token *models.Token) error {
	const op = "storage.memory.SaveToken"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTID++
	token.ID = s.nextTID
	if token.CreatedAt.IsZero() {
		token.CreatedAt = s.now().UTC()
	}

	cp := *token
	s.tokens = append(s.tokens, &cp)

	return nil
}

// ActiveTokenByHash возвращает активную запись с наибольшим сроком действия.
func (s *Storage) ActiveTokenByHash(ctx context.Context, kind models.TokenKind, hash string) (*models.Token, error) {
	const op = "storage.memory.ActiveTokenByHash"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Token
	for _, t := range s.tokens {
		if !t.Active || t.HashFor(kind) != hash {
			continue
		}

		if best == nil || t.ExpiresFor(kind).After(best.ExpiresFor(kind)) ||
			(t.ExpiresFor(kind).Equal(best.ExpiresFor(kind)) && t.ID > best.ID) {
			best = t
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *best
	return &cp, nil
}

// RevokeByAccessHash деактивирует сессию, к которой относится access-хэш,
// и возвращает все её записи.
func (s *Storage) RevokeByAccessHash(ctx context.Context, accessHash string) ([]*models.Token, error) {
	const op = "storage.memory.RevokeByAccessHash"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	refreshHash, found := "", false
	for _, t := range s.tokens {
		if t.AccessTokenHash == accessHash {
			refreshHash, found = t.RefreshTokenHash, true
			break
		}
	}

	if !found {
		return nil, nil
	}

	var session []*models.Token
	for _, t := range s.tokens {
		if t.AccessTokenHash == accessHash || t.RefreshTokenHash == refreshHash {
			t.Active = false
			cp := *t
			session = append(session, &cp)
		}
	}

	return session, nil
}

// Ping всегда успешен.
func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close ничего не освобождает.
func (s *Storage) Close() {}
