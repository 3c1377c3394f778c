package httpserver

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"scriptdesk/internal/handlers"
	"scriptdesk/internal/metrics"
	"scriptdesk/internal/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Proxy    *handlers.ProxyHandler
	Scripts  *handlers.ScriptsHandler
	Novels   *handlers.NovelsHandler
	Settings *handlers.SettingsHandler
	System   *handlers.SystemHandler
}

type Options struct {
	RequestTimeout time.Duration
	// ImageTimeout replaces RequestTimeout on the image route, which polls
	// the upstream for up to a couple of minutes.
	ImageTimeout   time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h Handlers, opts Options) {
	handle := handlers.Handle

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.CORS(opts.AllowedOrigins...))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

	requestTimeout := middleware.Timeout(opts.RequestTimeout)

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.Timeout(opts.ImageTimeout)).Post("/proxy/image", handle(h.Proxy.Image))

		r.Group(func(r chi.Router) {
			r.Use(requestTimeout)

			r.Post("/proxy", handle(h.Proxy.Text))

			r.Get("/settings/apikey/check", handle(h.Settings.CheckAPIKey))
			r.Post("/settings/apikey", handle(h.Settings.SaveAPIKey))

			r.Route("/scripts", func(r chi.Router) {
				r.Get("/", handle(h.Scripts.List))
				r.Post("/", handle(h.Scripts.Create))
				r.Put("/{id}", handle(h.Scripts.Update))
				r.Delete("/{id}", handle(h.Scripts.Delete))
				r.Post("/{id}/favorite", handle(h.Scripts.ToggleFavorite))
			})
			r.Get("/history", handle(h.Scripts.History))
			r.Get("/stats", handle(h.Scripts.Stats))

			r.Route("/novels", func(r chi.Router) {
				r.Get("/", handle(h.Novels.ListNovels))
				r.Post("/", handle(h.Novels.CreateNovel))
				r.Get("/{id}", handle(h.Novels.GetNovel))
				r.Put("/{id}", handle(h.Novels.UpdateNovel))
				r.Delete("/{id}", handle(h.Novels.DeleteNovel))
				r.Get("/{id}/chapters", handle(h.Novels.ListChapters))
				r.Post("/{id}/chapters", handle(h.Novels.CreateChapter))
			})
			r.Route("/chapters", func(r chi.Router) {
				r.Get("/{id}", handle(h.Novels.GetChapter))
				r.Put("/{id}", handle(h.Novels.UpdateChapter))
				r.Delete("/{id}", handle(h.Novels.DeleteChapter))
			})

			r.Get("/cache/stats", handle(h.System.CacheStats))
			r.Post("/cache/{segment}/invalidate", handle(h.System.InvalidateCache))

			r.Get("/info", handle(h.System.Info))
			r.Get("/health", handle(h.System.Health))
		})
	})

	// health check
	r.With(requestTimeout).Get("/healthz", handle(h.System.Health))

	r.Handle("/metrics", metrics.Handler())
}
