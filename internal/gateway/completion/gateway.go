// Package completion turns validated envelopes into upstream calls and
// returns either a complete result or a lazily pulled stream of fragments.
package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/envelope"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/metrics"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/providers"
)

// ErrUpstream is matched by every UpstreamError.
var ErrUpstream = errors.New("upstream call failed")

// UpstreamError reports a failed upstream call for one endpoint.
type UpstreamError struct {
	Endpoint string
	Err      error
}

func (e *UpstreamError) Error() string   { return e.Err.Error() }
func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// Result is a completed non-streaming call.
type Result struct {
	Text  string
	Usage providers.Usage
	Model string
}

// Gateway issues upstream calls on behalf of request handlers.
type Gateway struct {
	provider  providers.Provider
	metrics   *metrics.Recorder
	model     string
	maxTokens int
}

// New creates a gateway calling provider with the given model and output
// token bound.
func New(provider providers.Provider, recorder *metrics.Recorder, model string, maxTokens int) *Gateway {
	return &Gateway{
		provider:  provider,
		metrics:   recorder,
		model:     model,
		maxTokens: maxTokens,
	}
}

// BuildPrompt assembles the upstream prompt for env.
func (g *Gateway) BuildPrompt(env *envelope.Envelope) (providers.Prompt, error) {
	build, ok := builders[env.Kind]
	if !ok {
		return providers.Prompt{}, fmt.Errorf("no prompt builder for request kind %q", env.Kind)
	}

	system, user := build(env)
	return providers.Prompt{
		Model:     g.model,
		System:    system,
		User:      user,
		MaxTokens: g.maxTokens,
	}, nil
}

// Complete performs one non-streaming upstream call.
func (g *Gateway) Complete(ctx context.Context, env *envelope.Envelope) (*Result, error) {
	endpoint := string(env.Kind)
	log := zerolog.Ctx(ctx)

	prompt, err := g.BuildPrompt(env)
	if err != nil {
		return nil, g.fail(ctx, endpoint, err)
	}

	resp, err := g.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, g.fail(ctx, endpoint, err)
	}

	g.metrics.UpstreamCall(endpoint, metrics.OutcomeSuccess)
	g.metrics.Tokens(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	log.Debug().
		Str("endpoint", endpoint).
		Int("input_tokens", resp.Usage.InputTokens).
		Int("output_tokens", resp.Usage.OutputTokens).
		Msg("upstream call completed")

	return &Result{Text: resp.Text, Usage: resp.Usage, Model: g.model}, nil
}

// Stream opens an upstream stream. The returned stream is bound to ctx:
// cancelling ctx or calling Close aborts the upstream call.
func (g *Gateway) Stream(ctx context.Context, env *envelope.Envelope) (*ChunkStream, error) {
	endpoint := string(env.Kind)

	prompt, err := g.BuildPrompt(env)
	if err != nil {
		return nil, g.fail(ctx, endpoint, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	reader, err := g.provider.Stream(streamCtx, prompt)
	if err != nil {
		cancel()
		return nil, g.fail(ctx, endpoint, err)
	}

	return newChunkStream(streamCtx, cancel, endpoint, reader, g.metrics), nil
}

func (g *Gateway) fail(ctx context.Context, endpoint string, err error) error {
	outcome := metrics.OutcomeError
	if ctx.Err() != nil {
		outcome = metrics.OutcomeCancelled
	}
	g.metrics.UpstreamCall(endpoint, outcome)

	zerolog.Ctx(ctx).Error().Err(err).Str("endpoint", endpoint).Str("outcome", outcome).Msg("upstream call failed")
	return &UpstreamError{Endpoint: endpoint, Err: err}
}
