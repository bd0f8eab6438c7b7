package server

import (
	"crypto/subtle"
	"net/http"
)

const apiKeyHeader = "X-API-Key"

// authMiddleware returns a middleware that requires the API key. The key is
// accepted from the X-API-Key header, as the password of HTTP Basic Auth,
// or from the api_key query parameter (browsers cannot set headers on
// WebSocket handshakes). If apiKey is empty, auth is disabled.
func authMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyMatches(r.Header.Get(apiKeyHeader), apiKey) {
				next.ServeHTTP(w, r)
				return
			}
			if _, pass, ok := r.BasicAuth(); ok && keyMatches(pass, apiKey) {
				next.ServeHTTP(w, r)
				return
			}
			if keyMatches(r.URL.Query().Get("api_key"), apiKey) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("WWW-Authenticate", `Basic realm="cbz-edit"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func keyMatches(got, want string) bool {
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
