package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/CampusConnect/CC-Backend/internal/httputil"
	"github.com/CampusConnect/CC-Backend/internal/utils"
)

// TokenVerifier checks a bearer token and returns the identity it encodes.
// Implemented by auth.TokenInfo so this package stays free of jwt imports.
type TokenVerifier interface {
	VerifyToken(token string) (userID, role string, err error)
}

// AuthMiddleware requires an "Authorization: Bearer <token>" header, verifies
// the token, and exposes {user id, role} on the request context. The handler
// is never reached on a missing, malformed, or invalid token.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if header == "" || len(parts) != 2 || parts[1] == "" {
				httputil.Fail(w, http.StatusUnauthorized, "This user is not logged in!")
				return
			}

			userID, role, err := verifier.VerifyToken(parts[1])
			if err != nil {
				httputil.Fail(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), utils.ContextUserIDKey, userID)
			ctx = context.WithValue(ctx, utils.ContextRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware gates a route to the ADMIN role. It only reads what
// AuthMiddleware already decoded, so a role change is not visible to tokens
// issued before it.
func AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := utils.GetRoleFromContext(r.Context())
		if !ok || role != "ADMIN" {
			httputil.Fail(w, http.StatusUnauthorized, "only admin can access!")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware echoes the origin back only if it's on the allow-list.
func CORSMiddleware(allowed []string) func(http.Handler) http.Handler {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		allowSet[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if _, ok := allowSet[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin") // important for caches
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods",
					"GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers",
					"Content-Type, Authorization")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit throttles per client IP. Applied to login and send-verif so a
// single host cannot brute-force credentials or spam PIN mail.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		lim, ok := limiters[ip]
		if !ok {
			lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
			limiters[ip] = lim
		}
		return lim
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !limiterFor(ip).Allow() {
				httputil.Fail(w, http.StatusTooManyRequests, "too many requests, slow down!")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
