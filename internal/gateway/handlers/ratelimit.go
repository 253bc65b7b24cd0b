package handlers

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/envelope"
	"github.com/mrmushfiq/llm0-code-gateway/internal/shared/config"
)

// admit charges one request against the caller's budget. It runs only
// after the body validated, so rejected input never consumes quota. When
// the budget is exhausted it writes the 429 response and returns false.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, kind envelope.Kind) bool {
	d, err := h.limiter.Allow(r.Context(), clientKey(r))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("rate limit store unavailable, admitting request")
		return true
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

	if d.Allowed {
		return true
	}

	endpoint := string(kind)
	h.metrics.RateLimited(endpoint)
	hlog.FromRequest(r).Warn().Err(d.Err()).Str("endpoint", endpoint).Dur("retry_after", d.RetryAfter).Msg("request throttled")

	rate := config.Rate{Limit: h.limiter.Limit(), Window: h.limiter.Window()}
	w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(d.RetryAfter)))
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"error": fmt.Sprintf("Rate limit exceeded: %s", rate),
	})
	return false
}

// clientKey identifies the caller by the host part of its address.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
