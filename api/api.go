// Package api serves the patient registration endpoints and the queue
// administration routes over HTTP using chi.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/intake/engine"
	"github.com/xraph/intake/patient"
	"github.com/xraph/intake/upload"
)

// API wires the HTTP handlers to the engine and the patient service.
type API struct {
	eng       *engine.Engine
	patients  *patient.Service
	uploads   *upload.Store
	validator *patient.Validator
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	origins   []string
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger used for request logs and unexpected errors.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *API) { a.gatherer = g }
}

// WithAllowedOrigins sets the CORS allow-list. "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) { a.origins = origins }
}

// New creates an API.
func New(eng *engine.Engine, patients *patient.Service, uploads *upload.Store, opts ...Option) *API {
	a := &API{
		eng:       eng,
		patients:  patients,
		uploads:   uploads,
		validator: patient.NewValidator(),
		gatherer:  prometheus.DefaultGatherer,
		logger:    slog.Default(),
		origins:   []string{"*"},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(securityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(a.cors)

	r.Get("/health", a.health)
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	r.Handle(upload.PublicPrefix+"*", http.StripPrefix(upload.PublicPrefix, a.uploads.Handler()))

	r.Route("/api/patients", func(r chi.Router) {
		r.Post("/", a.createPatient)
		r.Get("/", a.listPatients)
		r.Get("/{id}", a.getPatient)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/jobs", a.listJobs)
		r.Get("/jobs/counts", a.jobCounts)
		r.Get("/jobs/{jobId}", a.getJob)

		r.Get("/dead", a.listDead)
		r.Delete("/dead", a.purgeDead)
		r.Get("/dead/{jobId}", a.getDead)
		r.Post("/dead/{jobId}/replay", a.replayDead)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, NewAppError(http.StatusNotFound, "Route not found"))
	})

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.DebugContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// cors answers preflight requests and sets the allow-origin header for
// origins on the allow-list.
func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && a.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) originAllowed(origin string) bool {
	for _, o := range a.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
