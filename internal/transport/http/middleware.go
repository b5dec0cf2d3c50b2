package http

import (
	"net/http"
	"time"

	"github.com/fbz-tec/pgxserve/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
)

// accessLog logs one line per request once it has been served.
func accessLog(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("%s %s %d %dB %s [%s] %s", r.Method, r.URL.Path, status, ww.BytesWritten(),
				time.Since(start).Round(time.Millisecond), middleware.GetReqID(r.Context()), r.RemoteAddr)
		})
	}
}
