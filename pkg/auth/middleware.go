package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/contextkeys"
	"github.com/hearthcrm/hearth/pkg/httputil"
)

// Middleware resolves Authorization: Bearer tokens to an auth context.
// When required is false, unauthenticated requests pass through anonymous;
// the security layer fails closed for them anyway.
func Middleware(store *Store, logger *logrus.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if required {
					httputil.WriteUnauthorized(w, "authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			key, err := store.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, ErrNotFound), errors.Is(err, ErrKeyRevoked), errors.Is(err, ErrKeyExpired):
					httputil.WriteUnauthorized(w, "invalid api key")
				default:
					logger.WithError(err).Error("api key lookup failed")
					httputil.WriteInternalError(w, errors.New("authentication unavailable"))
				}
				return
			}

			if err := store.TouchLastUsed(r.Context(), key.ID); err != nil {
				logger.WithError(err).Debug("failed to record key usage")
			}

			authCtx := &Context{
				UserID: key.UserID,
				KeyID:  key.ID,
				Scopes: key.Scopes,
			}
			next.ServeHTTP(w, r.WithContext(contextkeys.WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireScope rejects requests whose key lacks the scope
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !authCtx.HasScope(scope) {
				httputil.WriteForbidden(w, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
