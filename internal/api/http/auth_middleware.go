package httpapi

import (
	"net/http"
	"strings"
)

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet, err := s.authSvc.Authenticate(extractBearer(r))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "missing or expired access token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withWallet(r.Context(), wallet)))
	})
}

func extractBearer(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
