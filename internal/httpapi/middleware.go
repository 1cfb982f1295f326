package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// observe пишет access-лог и HTTP-метрики с шаблоном маршрута в качестве метки.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = r.Method + " " + pattern
			}
		}
		elapsed := time.Since(started)
		s.metrics.ObserveRequest(route, strconv.Itoa(status), elapsed)

		entry := s.logger.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"route":      route,
			"status":     status,
			"duration":   elapsed,
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("cart api request failed")
			return
		}
		entry.Debug("cart api request served")
	})
}
