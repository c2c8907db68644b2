package handlers

import (
	"context"
	"net/http"
	"time"

	"timeline/internal/logging"
)

// WithRecover wraps an http.Handler and recovers from panics, answering with
// onPanic instead of crashing the server.
func WithRecover(next http.Handler, logger logging.Logger, onPanic http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error(r.Context(), "panic recovered", map[string]interface{}{
					"panic":  rec,
					"method": r.Method,
					"path":   r.URL.Path,
				})
				onPanic(w, r)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// LimitBody caps request bodies at max bytes. Requests that announce a larger
// body are turned away before anything is read: form posts through
// onTooLarge, any other method with a plain 413.
func LimitBody(next http.Handler, max int64, onTooLarge http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > max {
			if r.Method != http.MethodPost {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			onTooLarge(w, r)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, max)
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

// LogRequests writes one access log line per request.
func LogRequests(next http.Handler, logger logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info(r.Context(), "request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
	})
}

type userIDKey struct{}

// RequireAuth lets only logged-in users through and stores their id in the
// request context.
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := h.sessions.CurrentUserID(r)
		if !ok {
			h.logger.Debug(r.Context(), "access denied", map[string]interface{}{
				"path":  r.URL.Path,
				"error": ErrUnauthenticated.Error(),
			})
			h.redirectWithNotice(w, r, "/login", msgLoginRequired)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, uid)))
	}
}

func userIDFrom(ctx context.Context) (int64, error) {
	uid, ok := ctx.Value(userIDKey{}).(int64)
	if !ok {
		return 0, ErrUnauthenticated
	}
	return uid, nil
}
