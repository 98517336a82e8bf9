package middleware

import (
	"net/http"

	"gpsgateway/internal/api/util"
)

type AuthMiddleware struct {
	signer *util.Signer
}

func NewAuthMiddleware(signer *util.Signer) *AuthMiddleware {
	return &AuthMiddleware{signer: signer}
}

// Authenticate rejects requests without a valid bearer token. With no
// secret configured every request is rejected.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := util.BearerToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		claims, err := m.signer.Parse(token)
		if err != nil {
			http.Error(w, "Invalid authorization token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(util.WithClaims(r.Context(), claims)))
	})
}
