package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// BearerToken returns the token from "Authorization: Bearer <t>" or the
// token query parameter.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	return r.URL.Query().Get("token")
}

// SharedSecret guards next with a static secret. An empty secret is a
// configuration error and fails closed with 500.
func SharedSecret(secret string, onError func(w http.ResponseWriter, r *http.Request, status int, msg string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := zerolog.Ctx(r.Context())
			if secret == "" {
				log.Error().Msg("CRON_SECRET not configured, rejecting trigger")
				onError(w, r, http.StatusInternalServerError, "trigger secret not configured")
				return
			}
			token := BearerToken(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				log.Warn().Str("remote_addr", r.RemoteAddr).Msg("unauthorized trigger attempt")
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
