// directory — справочник пользователей: проверка учётных данных,
// поиск идентичности по ID и регистрация (bcrypt).
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pribylovaa/emenu-auth/internal/models"
	"github.com/pribylovaa/emenu-auth/internal/pkg/log"
	"github.com/pribylovaa/emenu-auth/internal/pkg/redact"
	"github.com/pribylovaa/emenu-auth/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxLoginLen    = 64
	maxPasswordLen = 72 // предел bcrypt
)

var (
	// ErrInvalidCredentials — неизвестный логин или неверный пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginTaken — логин уже занят.
	ErrLoginTaken = errors.New("login already taken")
	// ErrInvalidLogin — пустой или слишком длинный логин.
	ErrInvalidLogin = errors.New("invalid login")
	// ErrInvalidPassword — пустой или слишком длинный пароль.
	ErrInvalidPassword = errors.New("invalid password")
)

// Directory реализует справочник поверх storage.UserStorage.
type Directory struct {
	users storage.UserStorage
	cost  int
	// dummyHash сравнивается с паролем для неизвестного логина,
	// чтобы время ответа не выдавало существование пользователя.
	dummyHash []byte
}

// Option настраивает Directory.
type Option func(*Directory)

// WithCost задаёт стоимость bcrypt.
func WithCost(cost int) Option {
	return func(d *Directory) { d.cost = cost }
}

// New создаёт справочник.
func New(users storage.UserStorage, opts ...Option) *Directory {
	d := &Directory{users: users, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(d)
	}

	d.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), d.cost)

	return d
}

// Authenticate проверяет пару логин/пароль.
func (d *Directory) Authenticate(ctx context.Context, login, password string) (*models.Identity, error) {
	const op = "directory.Authenticate"

	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := d.users.UserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(d.dummyHash, []byte(password))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		log.From(ctx).Debug("password_mismatch",
			slog.String("op", op),
			slog.String("login", redact.Login(login)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return &models.Identity{UserID: user.ID, Login: user.Login}, nil
}

// UserByID возвращает идентичность пользователя; storage.ErrNotFound,
// если пользователя больше нет.
func (d *Directory) UserByID(ctx context.Context, id int64) (*models.Identity, error) {
	const op = "directory.UserByID"

	user, err := d.users.UserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.Identity{UserID: user.ID, Login: user.Login}, nil
}

// Exists сообщает, существует ли пользователь с данным ID.
func (d *Directory) Exists(ctx context.Context, id int64) (bool, error) {
	const op = "directory.Exists"

	_, err := d.users.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// Register создаёт пользователя с bcrypt-хэшем пароля.
func (d *Directory) Register(ctx context.Context, login, password string) (*models.User, error) {
	const op = "directory.Register"

	login = strings.TrimSpace(login)
	if login == "" || utf8.RuneCountInString(login) > maxLoginLen {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidLogin)
	}

	if password == "" || len(password) > maxPasswordLen {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Login:        login,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := d.users.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrLoginTaken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_registered",
		slog.String("op", op),
		slog.Int64("user_id", user.ID),
		slog.String("login", redact.Login(login)),
	)

	return user, nil
}

// Remove удаляет пользователя по логину.
func (d *Directory) Remove(ctx context.Context, login string) error {
	const op = "directory.Remove"

	user, err := d.users.UserByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := d.users.DeleteUser(ctx, user.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
