package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/andy/billsink/internal/metrics"
)

type contextKey string

// OwnerIDContextKey is the key used to store the owner ID in the request context.
const OwnerIDContextKey = contextKey("ownerID")

// PortalTokenHeader carries the client portal token on portal routes
const PortalTokenHeader = "X-Portal-Token"

// OwnerAuthMiddleware validates HS256 JWTs and injects the numeric subject as
// the owner ID.
func OwnerAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithStatus(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondWithStatus(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			owner, err := parseOwnerToken(secret, tokenString)
			if err != nil {
				respondWithStatus(w, http.StatusUnauthorized, fmt.Sprintf("Invalid token: %v", err))
				return
			}

			ctx := context.WithValue(r.Context(), OwnerIDContextKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseOwnerToken(secret, tokenString string) (int64, error) {
	if secret == "" {
		return 0, fmt.Errorf("server has no jwt secret configured")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}

	owner, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || owner <= 0 {
		return 0, fmt.Errorf("subject is not an owner id")
	}
	return owner, nil
}

// NewOwnerToken signs an owner token, used by `billsink serve token`
func NewOwnerToken(secret string, owner int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(owner, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// OwnerFromContext retrieves the owner ID from the request context.
func OwnerFromContext(ctx context.Context) (int64, bool) {
	owner, ok := ctx.Value(OwnerIDContextKey).(int64)
	return owner, ok
}

// InternalAuthMiddleware validates the internal API key for trusted job
// triggers. Without a configured key every request is refused.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				respondWithStatus(w, http.StatusServiceUnavailable, "Internal API is not configured")
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || provided != requiredKey {
				respondWithStatus(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func observeRequests(m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RequestObserved(r.Method, route, status, time.Since(start))
		})
	}
}
