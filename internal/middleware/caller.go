package middleware

import (
	"net/http"
	"strings"

	"github.com/pkordes/tripbook/backend/internal/service"
)

// CallerHeader carries the signed-in account id. Authentication happens in
// front of this service; requests without the header are anonymous and
// every orchestrator call answers them with domain.ErrNotAuthenticated.
const CallerHeader = "X-User-ID"

// Caller puts the account id from CallerHeader into the request context
// where service.ContextAuth finds it.
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(CallerHeader)); id != "" {
			r = r.WithContext(service.WithCaller(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
