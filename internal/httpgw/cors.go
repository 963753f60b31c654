// Package httpgw is the thin HTTP surface in front of the gateway: the
// WebSocket upgrade route, an unauthenticated health probe, an HTTP
// mirror of server.stats, and a CORS layer shared by all three.
package httpgw

import (
	"net/http"
	"strings"
)

// CORSMiddleware applies CORS headers based on allowedOrigins. "*"
// permits every origin (development convenience).
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := allowAll
			if !allowed && origin != "" {
				_, allowed = originSet[origin]
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
					"Content-Type", "Accept", "Origin", "X-Requested-With",
				}, ", "))
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed builds the same allow-set the CORS middleware uses, shared
// by the WebSocket upgrader's CheckOrigin so both layers agree.
func originAllowed(allowedOrigins []string) func(origin string) bool {
	allowAll := false
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = struct{}{}
	}
	return func(origin string) bool {
		if allowAll {
			return true
		}
		// Non-browser clients send no Origin header; the allowlist only
		// gates cross-origin browser traffic.
		if origin == "" {
			return true
		}
		_, ok := originSet[origin]
		return ok
	}
}
