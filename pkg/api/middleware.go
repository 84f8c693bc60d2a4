package api

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userContextKey contextKey = "user"

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", ww.Status()).
			WithField("remote", r.RemoteAddr).
			WithField("request_id", chimw.GetReqID(r.Context())).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// limitBody caps request bodies at the configured size.
func (s *server) limitBody(next http.Handler) http.Handler {
	limit := s.cfg.Server.MaxBodyBytes()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth checks HTTP basic credentials and injects the username into
// the request context.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="earthframe"`)
			writeError(w, http.StatusUnauthorized, categoryUnauthorized,
				"authentication required")

			return
		}

		if !s.users.verify(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="earthframe"`)
			writeError(w, http.StatusUnauthorized, categoryUnauthorized,
				"invalid credentials")

			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromContext returns the authenticated username, if any.
func userFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userContextKey).(string)

	return user
}
