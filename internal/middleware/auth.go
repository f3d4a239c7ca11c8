package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/helpbyexperts/ava/backend/pkg/utils"
)

// BearerToken guards expert endpoints. With an empty token every request is
// refused. EventSource cannot set headers, so a token query parameter is
// accepted too.
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := presentedToken(r)
			if token == "" || presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, value, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(value)
	}
	return r.URL.Query().Get("token")
}
