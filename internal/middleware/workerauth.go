package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// WorkerSecretHeader carries the shared secret that authorizes worker
// trigger endpoints. The secret is also accepted as a bearer token.
const WorkerSecretHeader = "X-Worker-Secret"

// WorkerAuth guards the /workers/* trigger endpoints with a shared
// secret. When no secret is configured the middleware lets every request
// through so local development works out of the box; the permissive mode
// is logged loudly once at startup.
func WorkerAuth(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if secret == "" {
		logger.Warn("worker endpoints are UNPROTECTED: no worker secret configured")
	}
	secretBytes := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get(WorkerSecretHeader)
			if presented == "" {
				if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
					presented = strings.TrimPrefix(bearer, "Bearer ")
				}
			}
			if subtle.ConstantTimeCompare([]byte(presented), secretBytes) != 1 {
				UpdateResponseContext(w, SetErrorCode(r.Context(), "worker_auth_failed"))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
