package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"iconforge/internal/http/handlers"
	"iconforge/internal/infra"
	"iconforge/internal/middleware"
)

// Options configures the router's cross-cutting layers.
type Options struct {
	Logger          infra.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	// StaticDir serves generated assets under /static/ when non-empty.
	StaticDir string
}

// NewRouter assembles the API surface with the shared middleware stack.
func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 30
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

	r.Get("/health", app.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/generate", app.CreateTask)
		r.Post("/generate/quality-optimized", app.CreateQualityOptimizedTask)
		r.Get("/task/{taskID}", app.TaskStatus)
		r.Get("/quota", app.Quota)
		r.Post("/receipt/verify", app.VerifyReceipt)
		r.Post("/quality/assess", app.AssessQuality)
		r.Get("/generation-modes", app.GenerationModes)
	})

	if opts.StaticDir != "" {
		fileServer := stdhttp.FileServer(stdhttp.Dir(opts.StaticDir))
		r.Handle("/static/*", stdhttp.StripPrefix("/static/", fileServer))
	}

	return r
}
