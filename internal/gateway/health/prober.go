// Package health probes the upstream provider with a minimal completion.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/metrics"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/providers"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	UpstreamConnected    = "connected"
	UpstreamDisconnected = "disconnected"
)

const (
	probeText      = "hi"
	probeMaxTokens = 10
)

// Report is the result of one probe.
type Report struct {
	Status   string
	Upstream string
	Model    string
	Error    string
}

// Healthy reports whether the upstream answered the probe.
func (r Report) Healthy() bool { return r.Status == StatusHealthy }

type Prober struct {
	provider providers.Provider
	model    string
	timeout  time.Duration
	metrics  *metrics.Recorder
}

// NewProber creates a prober. timeout bounds each probe independently of
// the caller's context.
func NewProber(provider providers.Provider, model string, timeout time.Duration, recorder *metrics.Recorder) *Prober {
	return &Prober{
		provider: provider,
		model:    model,
		timeout:  timeout,
		metrics:  recorder,
	}
}

// Probe issues one tiny completion. It never returns an error; failures are
// folded into the report.
func (p *Prober) Probe(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.provider.Complete(ctx, providers.Prompt{
		Model:     p.model,
		User:      probeText,
		MaxTokens: probeMaxTokens,
	})
	if err != nil {
		p.metrics.UpstreamHealth(false)
		zerolog.Ctx(ctx).Warn().Err(err).Str("provider", p.provider.Name()).Msg("upstream health probe failed")
		return Report{
			Status:   StatusUnhealthy,
			Upstream: UpstreamDisconnected,
			Model:    p.model,
			Error:    err.Error(),
		}
	}

	p.metrics.UpstreamHealth(true)
	return Report{Status: StatusHealthy, Upstream: UpstreamConnected, Model: p.model}
}
