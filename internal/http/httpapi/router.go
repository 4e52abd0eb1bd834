package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/middleware"
)

// Options configures the router.
type Options struct {
	Logger         *infra.Logger
	AllowedOrigins []string
	// SubmitLimit caps job submissions per caller per minute; zero disables it.
	SubmitLimit int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.SubmitLimit, time.Minute))
			r.Post("/images/generations", app.ImagesGenerate)
			r.Post("/videos", app.VideosCreate)
		})
		r.Get("/videos/{task_id}/status", app.VideoStatus)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", app.TasksList)
			r.Post("/resume", app.TasksResume)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", app.HistoryList)
			r.Get("/stats", app.HistoryStats)
			r.Get("/{id}", app.HistoryGet)
			r.Get("/{id}/archive", app.HistoryArchive)
		})

		r.Get("/storage/stats", app.StorageStats)
		r.Get("/metrics", app.Metrics)
		r.Get("/events", app.StreamEvents)
	})

	return r
}
