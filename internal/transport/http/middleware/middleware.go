// middleware — HTTP-мидлвары сервиса: request-id, логирование, паники,
// дедлайны и проверка Bearer-токена. Подключаются через chi.Router.Use.
package middleware

import "net/http"

// Middleware — стандартный net/http мидлвар.
type Middleware func(http.Handler) http.Handler
