package httpserver

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/config"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// Server aggregates the handler dependencies.
type Server struct {
	Cfg     config.Config
	Repo    domain.WorkRepository
	Storage domain.StorageClient
	DBCheck func(ctx context.Context) error
}

// NewServer constructs the ingress server.
func NewServer(cfg config.Config, repo domain.WorkRepository, storage domain.StorageClient, dbCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Repo: repo, Storage: storage, DBCheck: dbCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New(validator.WithRequiredStructEnabled()) })
	return vld
}

// ParseOrigins splits a comma-separated origin list, trimming spaces. Empty
// input means all origins.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Router builds the HTTP handler with all middleware and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer())
	r.Use(RequestID())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(TraceMiddleware)
	r.Use(AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(s.Cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limit mutating endpoints.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(s.Cfg.RateLimitPerMin, time.Minute))
		wr.Post("/v1/webhook/telegram", s.TelegramWebhookHandler())
		wr.Post("/v1/submissions/upload", s.UploadHandler())
		wr.Post("/v1/assignments", s.CreateAssignmentHandler())
	})

	// Read-only endpoints.
	r.Get("/v1/submissions", s.ListSubmissionsHandler())
	r.Get("/v1/submissions/{id}", s.GetSubmissionHandler())
	r.Get("/v1/assignments", s.ListAssignmentsHandler())

	// Health and metrics.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return SecurityHeaders(r)
}

// ReadyzHandler reports readiness based on the database check.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.DBCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := s.DBCheck(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "db": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}
