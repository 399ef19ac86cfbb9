package api

import (
	"net/http"
	"strings"

	"github.com/hearthcrm/hearth/pkg/auth"
	"github.com/hearthcrm/hearth/pkg/httputil"
)

// scopeMiddleware enforces API key scopes on the record and report surface.
// Reads need records:read, writes need records:write; the admin scope
// implies both. Anonymous requests pass through and are denied downstream
// by the fail-closed security context.
func scopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/records") && !strings.HasPrefix(r.URL.Path, "/reports") {
			next.ServeHTTP(w, r)
			return
		}

		caller := auth.FromContext(r.Context())
		if caller == nil {
			next.ServeHTTP(w, r)
			return
		}

		required := auth.ScopeRecordsWrite
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			required = auth.ScopeRecordsRead
		}
		if !caller.HasScope(required) {
			httputil.WriteForbidden(w, "insufficient scope")
			return
		}
		next.ServeHTTP(w, r)
	})
}
