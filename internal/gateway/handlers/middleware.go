package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/metrics"
)

type Middleware struct {
	metrics *metrics.Recorder
}

func NewMiddleware(recorder *metrics.Recorder) *Middleware {
	return &Middleware{metrics: recorder}
}

// MetricsMiddleware records count, latency and concurrency of every request.
// The endpoint label is the matched route pattern.
func (m *Middleware) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.metrics.RequestStarted()
		defer m.metrics.RequestFinished()

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.metrics.ObserveRequest(r.Method, routeLabel(r), status, time.Since(start))
	})
}

// CORSMiddleware handles CORS for the configured origins
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
