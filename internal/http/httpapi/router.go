package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"aiart/internal/http/handlers"
	"aiart/internal/middleware"
)

type Options struct {
	Logger          zerolog.Logger
	OwnerSecret     string
	CORSOrigins     []string
	RateLimitPerMin int
	// StorageDir is served read-only under StoragePrefix.
	StorageDir    string
	StoragePrefix string
	Gatherer      prometheus.Gatherer
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
		middleware.Owner(opts.OwnerSecret),
	)

	r.Get("/v1/healthz", app.Health)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.With(generateLimit(opts.RateLimitPerMin)).Post("/generate", app.ImagesGenerate)
		r.Route("/images", func(r chi.Router) {
			r.Get("/", app.ImagesList)
			r.Get("/recent", app.ImagesRecent)
			r.Get("/{id}", app.ImageGet)
			r.Delete("/{id}", app.ImageDelete)
		})
	})

	if opts.StorageDir != "" {
		prefix := opts.StoragePrefix
		if prefix == "" {
			prefix = "/images"
		}
		files := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(opts.StorageDir)))
		r.Handle(prefix+"/*", files)
	}

	return r
}

func generateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(perMinute, time.Minute)
}
