package middleware

import (
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clinicsync/internal/logger"
)

// RequestLog логирует method, path, статус и длительность. SSE-потоки не логируются
// по длительности: они живут столько, сколько открыт UI.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrap(w)
		next.ServeHTTP(rw, r)
		if strings.HasSuffix(r.URL.Path, "/events") {
			return
		}
		l := logger.With("method", r.Method, "path", r.URL.Path, "status", rw.status, "duration_ms", time.Since(start).Milliseconds())
		if id := chimw.GetReqID(r.Context()); id != "" {
			l = l.With("request_id", id)
		}
		switch {
		case rw.status >= 500:
			l.Error("http request")
		case rw.status >= 400:
			l.Warn("http request")
		default:
			l.Debug("http request")
		}
	})
}
