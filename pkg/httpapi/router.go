// Package httpapi exposes the biometric bridge to the app's webview over local HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultOrigins are the origins a Capacitor webview loads from.
var DefaultOrigins = []string{"capacitor://localhost", "ionic://localhost", "http://localhost", "https://localhost"}

// NewRouter registers the bridge routes. No request timeout is set: an
// authenticate call lasts as long as the OS prompt stays open.
func NewRouter(h *Handler, origins []string, logger *slog.Logger) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/biometric", func(r chi.Router) {
			r.Get("/availability", h.handleAvailability)
			r.Post("/authenticate", h.handleAuthenticate)
			r.Post("/retry/reset", h.handleResetRetry)
			r.Get("/credentials", h.handleHasCredentials)
			r.Post("/credentials", h.handleSetCredentials)
			r.Delete("/credentials", h.handleDisable)
			r.Post("/enable", h.handleEnable)
			r.Get("/preferences", h.handlePreferences)
		})
		r.Get("/device", h.handleDevice)
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("httpapi: request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"requestId", middleware.GetReqID(r.Context()),
			)
		})
	}
}
