package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// RouterOptions are the boundary settings of the router.
type RouterOptions struct {
	CORSOrigins       []string
	TrustProxyHeaders bool
}

// NewRouter wires the public routes. The completion handlers apply the rate
// limit themselves once the request body validated.
func NewRouter(h *Handler, mw *Middleware, logger zerolog.Logger, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	if opts.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_addr"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORSMiddleware(opts.CORSOrigins))
	r.Use(mw.MetricsMiddleware)

	r.Get("/", h.HandleRoot)
	r.Get("/health", h.HandleHealth)
	r.Get("/metrics", h.HandleMetrics)

	r.Post("/execute", h.HandleExecute)
	r.Post("/chat", h.HandleChat)
	r.Post("/analyze", h.HandleAnalyze)

	return r
}
