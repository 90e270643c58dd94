package annotation

import (
	"net/http"
	"net/url"
)

const neutralOrigin = "http://localhost"

var allowedMethods = "GET, POST, PATCH, DELETE, OPTIONS"

// isAllowedOrigin reports whether origin is an absolute http/https URL
// whose hostname is loopback. Empty, unparseable, non-http(s), or
// non-loopback origins are rejected.
func isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || !u.IsAbs() {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return loopbackHosts[u.Hostname()]
}

var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// corsMiddleware echoes back an allowed origin (or a neutral loopback
// origin when none was supplied or it was rejected), always sets
// Vary: Origin, and short-circuits preflight OPTIONS requests.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Set("Vary", "Origin")

		if isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", neutralOrigin)
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}
