package models

import "time"

// TokenPair — результат login/refresh.
//
// Описание:
//   - AccessToken — подписанный JWT для авторизации запросов;
//   - RefreshToken — подписанный JWT для выпуска новых access-токенов,
//     при refresh остаётся прежним;
//   - AccessExpiresAt — момент истечения access-токена (UTC);
//   - ExpiresIn — время жизни access-токена в секундах (поле expires_in ответа).
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	ExpiresIn       int64
}
