package middleware

import (
	"net/http"
	"strings"

	"github.com/stackroom/rankd/internal/auth"
)

// AdminAuth guards /admin/* with a bearer JWT carrying the admin role.
func AdminAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				UpdateResponseContext(w, SetErrorCode(r.Context(), "missing_token"))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				UpdateResponseContext(w, SetErrorCode(r.Context(), "invalid_token"))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !claims.IsAdmin() {
				UpdateResponseContext(w, SetErrorCode(r.Context(), "forbidden"))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			ctx := SetAdminSubject(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
