// token реализует подпись и проверку bearer-токенов (JWT, HS256).
//
// Полезная нагрузка — {user_id, type, exp}; дополнительно пишется jti,
// чтобы два токена одного пользователя, выпущенные в одну секунду,
// различались. Кодек не обращается к хранилищу: бизнес-проверки
// (отзыв, существование пользователя) выполняют TokenStore и сервис.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/emenu-auth/internal/models"
)

var (
	// ErrExpiredToken — exp <= now.
	ErrExpiredToken = errors.New("token expired")
	// ErrMalformedToken — неверная подпись, алгоритм или структура токена.
	ErrMalformedToken = errors.New("malformed token")
)

// Claims — содержимое подписанного токена.
type Claims struct {
	UserID int64            `json:"user_id"`
	Type   models.TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// Codec подписывает и проверяет токены общим секретом.
// Безопасен для конкурентного использования.
type Codec struct {
	secret []byte
	now    func() time.Time
	newID  func() string
}

// Option настраивает Codec.
type Option func(*Codec)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithIDGenerator подменяет генератор jti.
func WithIDGenerator(newID func() string) Option {
	return func(c *Codec) { c.newID = newID }
}

// NewCodec создаёт кодек. Секрет передаётся явно при старте процесса.
func NewCodec(secret string, opts ...Option) *Codec {
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Sign выпускает токен типа kind со сроком now+ttl и возвращает строку и exp.
func (c *Codec) Sign(userID int64, kind models.TokenKind, ttl time.Duration) (string, time.Time, error) {
	const op = "token.codec.Sign"

	if !kind.Valid() {
		return "", time.Time{}, fmt.Errorf("%s: unknown token type %q", op, kind)
	}

	// exp хранится с точностью до секунды.
	exp := c.now().UTC().Add(ttl).Truncate(time.Second)

	claims := Claims{
		UserID: userID,
		Type:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        c.newID(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// Verify проверяет подпись и срок действия и возвращает claims.
func (c *Codec) Verify(raw string) (*Claims, error) {
	const op = "token.codec.Verify"

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrExpiredToken)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrMalformedToken)
	}

	if !claims.Type.Valid() || claims.UserID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformedToken)
	}

	return claims, nil
}
