package models

import "time"

// TokenKind - тип bearer-токена.
type TokenKind string

const (
	// TokenAccess - короткоживущий токен для вызова API.
	TokenAccess TokenKind = "access"
	// TokenRefresh - долгоживущий токен, используется только для выпуска новых access-токенов.
	TokenRefresh TokenKind = "refresh"
)

// Valid сообщает, является ли значение известным типом токена.
func (k TokenKind) Valid() bool {
	return k == TokenAccess || k == TokenRefresh
}

// Token - запись TokenStore: хэши выданной пары токенов и сроки их действия.
//
// Сырые токены в хранилище не попадают. Запись создаётся при login и при каждом refresh,
// изменяется только флагом Active (logout) и физически не удаляется.
type Token struct {
	ID               int64
	UserID           int64
	AccessTokenHash  string
	RefreshTokenHash string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Active           bool
	CreatedAt        time.Time
}

// HashFor возвращает хэш токена указанного типа.
func (t *Token) HashFor(kind TokenKind) string {
	if kind == TokenRefresh {
		return t.RefreshTokenHash
	}

	return t.AccessTokenHash
}

// ExpiresFor возвращает срок действия токена указанного типа.
func (t *Token) ExpiresFor(kind TokenKind) time.Time {
	if kind == TokenRefresh {
		return t.RefreshExpiresAt
	}

	return t.AccessExpiresAt
}

// UsableAt - запись пригодна, пока она активна и now строго меньше срока действия.
func (t *Token) UsableAt(kind TokenKind, now time.Time) bool {
	return t.Active && now.Before(t.ExpiresFor(kind))
}
