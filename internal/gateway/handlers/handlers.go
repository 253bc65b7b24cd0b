package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/completion"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/envelope"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/health"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/metrics"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/ratelimit"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/relay"
)

// Version is reported by the banner endpoint.
const Version = "2.0.0"

// Options carries the settings the handlers read at request time.
type Options struct {
	Environment    string
	EnableMetrics  bool
	RequestTimeout time.Duration
}

type Handler struct {
	gateway *completion.Gateway
	prober  *health.Prober
	limiter *ratelimit.Limiter
	metrics *metrics.Recorder
	opts    Options
	now     func() time.Time
}

func NewHandler(gateway *completion.Gateway, prober *health.Prober, limiter *ratelimit.Limiter, recorder *metrics.Recorder, opts Options) *Handler {
	return &Handler{
		gateway: gateway,
		prober:  prober,
		limiter: limiter,
		metrics: recorder,
		opts:    opts,
		now:     time.Now,
	}
}

type usageResponse struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type healthResponse struct {
	Status      string  `json:"status"`
	Timestamp   float64 `json:"timestamp"`
	Environment string  `json:"environment"`
	Model       string  `json:"model"`
	ClaudeAPI   string  `json:"claude_api"`
	Error       string  `json:"error,omitempty"`
}

// HandleRoot handles GET /
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Claude Code Server",
		"version": Version,
		"status":  "running",
	})
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.prober.Probe(r.Context())

	resp := healthResponse{
		Status:      report.Status,
		Timestamp:   float64(h.now().UnixNano()) / 1e9,
		Environment: h.opts.Environment,
		Model:       report.Model,
		ClaudeAPI:   report.Upstream,
		Error:       report.Error,
	}

	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// HandleMetrics handles GET /metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if !h.opts.EnableMetrics {
		writeError(w, http.StatusNotFound, "Metrics disabled")
		return
	}
	h.metrics.Handler().ServeHTTP(w, r)
}

// HandleExecute handles POST /execute
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	env, err := envelope.DecodeCode(envelope.KindExecute, r.Body)
	if err != nil {
		h.reject(w, r, envelope.KindExecute, err)
		return
	}
	h.serve(w, r, env, "result")
}

// HandleChat handles POST /chat
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	env, err := envelope.DecodeChat(r.Body)
	if err != nil {
		h.reject(w, r, envelope.KindChat, err)
		return
	}
	h.serve(w, r, env, "response")
}

// HandleAnalyze handles POST /analyze
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	env, err := envelope.DecodeCode(envelope.KindAnalyze, r.Body)
	if err != nil {
		h.reject(w, r, envelope.KindAnalyze, err)
		return
	}
	h.serve(w, r, env, "analysis")
}

// serve admits env against the rate limit, runs it upstream and writes
// either the JSON result, keyed by field, or the relayed stream.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, env *envelope.Envelope, field string) {
	if !h.admit(w, r, env.Kind) {
		return
	}

	if env.Stream {
		h.serveStream(w, r, env)
		return
	}

	// A finished upstream call is still paid for, so a client that hangs up
	// does not abort it; REQUEST_TIMEOUT bounds it instead.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.opts.RequestTimeout)
	defer cancel()

	res, err := h.gateway.Complete(ctx, env)
	if err != nil {
		writeUpstreamError(w, env.Kind, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		field:    res.Text,
		"usage": usageResponse{
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
		},
		"model": res.Model,
	})
}

func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, env *envelope.Envelope) {
	stream, err := h.gateway.Stream(r.Context(), env)
	if err != nil {
		writeUpstreamError(w, env.Kind, err)
		return
	}

	if err := relay.Relay(r.Context(), w, stream); err != nil {
		hlog.FromRequest(r).Info().Err(err).Str("endpoint", string(env.Kind)).Msg("stream relay stopped early")
	}
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, kind envelope.Kind, err error) {
	hlog.FromRequest(r).Info().Err(err).Str("endpoint", string(kind)).Msg("request rejected")

	var verr *envelope.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusUnprocessableEntity, verr.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeUpstreamError(w http.ResponseWriter, kind envelope.Kind, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"detail": map[string]string{
			"error":    err.Error(),
			"endpoint": string(kind),
		},
	})
}
