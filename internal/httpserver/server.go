package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jedmorris/syncforge/internal/config"
)

// Server holds the HTTP server dependencies for the api-mode process. The
// surface is intentionally small: this process has no human login, so
// there's no authenticated API router to mount beyond the webhook ingress.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	startedAt time.Time
}

// webhookEntry describes one entry in the GET /webhooks static list.
type webhookEntry struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// NewServer creates the HTTP server with middleware and the health/webhooks
// endpoints. The newsletter webhook handler is mounted by the caller via
// MountWebhook, since it depends on runtime components built in internal/app.
func NewServer(cfg *config.Config, logger *slog.Logger, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Beehiiv-Signature", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/health", s.handleHealth)
	s.Router.Get("/webhooks", s.handleWebhooks)
	s.Router.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// MountWebhook registers the Beehiiv subscriber webhook behind its HMAC
// verification middleware.
func (s *Server) MountWebhook(path string, verify func(http.Handler) http.Handler, handler http.Handler) {
	s.Router.With(verify).Post(path, handler.ServeHTTP)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleWebhooks(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, []webhookEntry{
		{
			Path:        "/beehiiv-subscriber-webhook",
			Method:      http.MethodPost,
			Description: "Receives subscriber.created and subscriber.unsubscribed events from Beehiiv",
		},
	})
}
