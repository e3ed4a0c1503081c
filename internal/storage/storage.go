// storage задаёт контракты хранилища пользователей и записей TokenStore.
package storage

//go:generate mockgen -source=storage.go -destination=../../mocks/storage.go -package=mocks

import (
	"context"
	"errors"

	"github.com/pribylovaa/emenu-auth/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (login).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт пользователя и проставляет ему ID.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByLogin находит пользователя по логину.
	UserByLogin(ctx context.Context, login string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id int64) (*models.User, error)
	// DeleteUser удаляет пользователя; записи его токенов сохраняются.
	DeleteUser(ctx context.Context, id int64) error
}

// TokenStorage выполняет операции над записями выданных токенов.
type TokenStorage interface {
	// SaveToken вставляет новую запись и проставляет ей ID.
	SaveToken(ctx context.Context, token *models.Token) error
	// ActiveTokenByHash возвращает самую свежую активную запись,
	// у которой хэш токена типа kind равен hash. Срок действия не проверяется.
	ActiveTokenByHash(ctx context.Context, kind models.TokenKind, hash string) (*models.Token, error)
	// RevokeByAccessHash деактивирует запись с данным access-хэшем вместе со
	// всеми записями, разделяющими её refresh-хэш, и возвращает всю сессию,
	// включая записи, отозванные ранее: повторный вызов отдаёт тот же набор.
	// Пустой результат без ошибки, если записи с таким access-хэшем нет.
	RevokeByAccessHash(ctx context.Context, accessHash string) ([]*models.Token, error)
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	UserStorage
	TokenStorage
	Ping(ctx context.Context) error
	Close()
}
