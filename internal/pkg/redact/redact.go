// redact маскирует чувствительные значения перед записью в лог.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
)

// Login оставляет первые две руны логина.
func Login(s string) string {
	r := []rune(s)
	if len(r) <= 2 {
		return "***"
	}

	return string(r[:2]) + "***"
}

// Token возвращает короткий отпечаток токена, по которому можно
// сопоставить записи лога, не раскрывая сам токен.
func Token(raw string) string {
	if raw == "" {
		return "[EMPTY_TOKEN]"
	}

	sum := sha256.Sum256([]byte(raw))
	return "tok:" + hex.EncodeToString(sum[:4])
}

func Password() string { return "[REDACTED_PASSWORD]" }
