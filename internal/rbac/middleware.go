package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/toolcrib/toolcrib/internal/platform/httpx"
	"github.com/toolcrib/toolcrib/internal/shared"
)

// Middleware resolves the caller and enforces role requirements.
type Middleware struct {
	Policy Policy
	Logger *slog.Logger
}

// Principal attaches the caller identity to the request context. Requests
// without a valid user id continue anonymously.
func (m Middleware) Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			if m.Logger != nil {
				m.Logger.Warn("rbac parse user id", slog.String("value", raw))
			}
			next.ServeHTTP(w, r)
			return
		}
		role := normalizeRole(r.Header.Get(HeaderUserRole))
		p := shared.Principal{UserID: id, Role: role, Privileged: m.Policy.IsPrivileged(role)}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireUser rejects anonymous callers.
func (m Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.PrincipalFromContext(r.Context()); !ok {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "authenticated user required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePrivileged rejects callers whose role is not privileged.
func (m Middleware) RequirePrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := shared.PrincipalFromContext(r.Context())
		if !ok || !p.Privileged {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "privileged role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
