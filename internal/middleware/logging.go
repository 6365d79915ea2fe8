package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/healthpulse/pkg"
)

const RequestIDHeader = "X-Request-Id"

// LogRequest logs each served request with its status and duration. A request id
// is taken from the incoming header, or generated, and echoed back to the client.
func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			begin := time.Now()
			resp := &responseWriter{w, http.StatusOK}
			next.ServeHTTP(resp, r)

			entry := log.WithFields(log.Fields{
				"request_id":  requestID,
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      resp.statusCode,
				"duration_ms": time.Since(begin).Milliseconds(),
				"ip":          pkg.ReadUserIP(r),
				"user_agent":  r.UserAgent(),
			})
			if resp.statusCode >= http.StatusInternalServerError {
				entry.Warn("request served")
				return
			}
			entry.Debug("request served")
		})
	}
}
