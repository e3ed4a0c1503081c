package models

import "time"

// User - учётная запись из справочника пользователей.
type User struct {
	ID           int64
	Login        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity - данные пользователя, которые AuthMiddleware кладёт в контекст запроса.
type Identity struct {
	UserID int64
	Login  string
}
