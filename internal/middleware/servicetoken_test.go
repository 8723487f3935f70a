package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServiceTokenMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		configured string
		sent       string
		wantStatus int
	}{
		{"valid token", "secret", "secret", http.StatusOK},
		{"wrong token", "secret", "other", http.StatusUnauthorized},
		{"missing token", "secret", "", http.StatusUnauthorized},
		{"token not configured", "", "anything", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewServiceTokenMiddleware(tt.configured)
			handler := m.Middleware(next)

			req := httptest.NewRequest(http.MethodPost, "/api/internal/award", nil)
			if tt.sent != "" {
				req.Header.Set("X-Service-Token", tt.sent)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
