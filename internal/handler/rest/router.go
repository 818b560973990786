package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/webitel/im-presence-service/internal/adapter/auth"
	"github.com/webitel/im-presence-service/internal/handler/ws"
)

func NewRouter(logger *slog.Logger, auther auth.Auther, wsHandler *ws.WSHandler, api *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(auther, logger))

		// Long-lived: no request timeout here.
		r.Method(http.MethodGet, "/ws", wsHandler)

		r.Route("/v1", func(r chi.Router) {
			r.Use(middleware.Timeout(15 * time.Second))
			r.Get("/presence", api.Presence)
			r.Get("/stats", api.Stats)
			r.Get("/metrics", api.Metrics)
			r.Post("/messages", api.SendMessage)
		})
	})

	return r
}

// RequestLogger is chi's request logging rendered through slog.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Debug("HTTP_REQUEST",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"remote", r.RemoteAddr,
					"request_id", middleware.GetReqID(r.Context()),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
