package middleware

import (
	"crypto/hmac"
	"net/http"
)

const serviceTokenHeader = "X-Service-Token"

// ServiceTokenMiddleware проверяет токен сервисных вызовов.
// Служебные операции (начисления, корректировки, управление каталогом)
// доступны только автоматизации платформы, а не конечным пользователям.
type ServiceTokenMiddleware struct {
	token []byte
}

// NewServiceTokenMiddleware создаёт middleware с указанным токеном.
func NewServiceTokenMiddleware(token string) *ServiceTokenMiddleware {
	return &ServiceTokenMiddleware{token: []byte(token)}
}

// Middleware отклоняет запросы без корректного сервисного токена.
func (m *ServiceTokenMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.token) == 0 {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		got := []byte(r.Header.Get(serviceTokenHeader))
		if !hmac.Equal(got, m.token) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
