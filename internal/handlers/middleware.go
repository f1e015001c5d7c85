package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/handlers/response"
)

// MaxBodyBytes caps request bodies
const MaxBodyBytes = 400 << 20

type MiddlewareProvider struct {
	// JWT verifies admin tokens; nil disables admin auth.
	JWT     primary.JWTService
	Metrics secondary.MetricsRecorder
}

// JWTMiddleware requires an HS256 bearer token when a verifier is configured
func (m *MiddlewareProvider) JWTMiddleware(next http.Handler) http.Handler {
	if m.JWT == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.WriteError(w, response.ErrorMessage{Message: "Authorization header missing", StatusCode: http.StatusUnauthorized})
			return
		}

		// Extract token from "Bearer <token>"
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		ok, err := m.JWT.VerifyTokenHMAC(r.Context(), tokenString, "HS256")
		if err != nil || !ok {
			response.WriteError(w, response.ErrorMessage{Message: "Invalid token", StatusCode: http.StatusUnauthorized})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// BodyLimit rejects bodies larger than MaxBodyBytes while they are read
func (m *MiddlewareProvider) BodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// HTTPMetrics records in-flight gauge, count and latency per route template
func (m *MiddlewareProvider) HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		start := time.Now()
		m.Metrics.RequestStarted(endpoint)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.Metrics.RequestFinished(endpoint, r.Method, rec.status, time.Since(start))
	})
}
