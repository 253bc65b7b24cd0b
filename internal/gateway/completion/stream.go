package completion

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/metrics"
	"github.com/mrmushfiq/llm0-code-gateway/internal/gateway/providers"
)

// ErrorMarker is the trailing fragment emitted when the upstream fails after
// streaming began. The response status is already committed by then, so the
// failure can only be reported in-band.
func ErrorMarker(err error) string {
	return "\n\nError: " + err.Error()
}

// ChunkStream is a forward-only, non-restartable sequence of text fragments
// in upstream order. It is meant for a single consumer goroutine.
type ChunkStream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	endpoint string
	reader   providers.StreamReader
	metrics  *metrics.Recorder

	done      bool
	finish    sync.Once
	closeOnce sync.Once
}

func newChunkStream(ctx context.Context, cancel context.CancelFunc, endpoint string, reader providers.StreamReader, recorder *metrics.Recorder) *ChunkStream {
	return &ChunkStream{
		ctx:      ctx,
		cancel:   cancel,
		endpoint: endpoint,
		reader:   reader,
		metrics:  recorder,
	}
}

// Next returns the next fragment, or ok == false once the sequence ended.
// An upstream failure produces one final ErrorMarker fragment.
func (s *ChunkStream) Next() (fragment string, ok bool) {
	if s.done {
		return "", false
	}

	frag, err := s.reader.Recv()
	switch {
	case err == nil:
		s.metrics.StreamFragment(s.endpoint)
		return frag, true
	case errors.Is(err, io.EOF):
		s.end(metrics.OutcomeSuccess, nil)
		return "", false
	case s.ctx.Err() != nil:
		s.end(metrics.OutcomeCancelled, err)
		return "", false
	default:
		s.end(metrics.OutcomeError, err)
		return ErrorMarker(err), true
	}
}

// Close aborts the upstream call if it is still running and releases the
// connection. It is safe to call more than once.
func (s *ChunkStream) Close() error {
	s.end(metrics.OutcomeCancelled, context.Canceled)

	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.reader.Close()
	})
	return err
}

// end records the single outcome of this stream.
func (s *ChunkStream) end(outcome string, err error) {
	s.done = true
	s.finish.Do(func() {
		s.metrics.UpstreamCall(s.endpoint, outcome)
		log := zerolog.Ctx(s.ctx)

		switch outcome {
		case metrics.OutcomeSuccess:
			usage := s.reader.Usage()
			s.metrics.Tokens(usage.InputTokens, usage.OutputTokens)
			log.Debug().Str("endpoint", s.endpoint).
				Int("input_tokens", usage.InputTokens).
				Int("output_tokens", usage.OutputTokens).
				Msg("upstream stream completed")
		case metrics.OutcomeCancelled:
			log.Info().Str("endpoint", s.endpoint).Msg("upstream stream cancelled")
		default:
			log.Error().Err(err).Str("endpoint", s.endpoint).Msg("upstream stream interrupted")
		}
	})
}
