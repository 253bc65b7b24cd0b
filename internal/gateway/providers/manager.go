package providers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mrmushfiq/llm0-code-gateway/internal/shared/config"
)

// New returns the upstream client named by the settings. baseURL may be
// empty to use the provider's public endpoint.
func New(s *config.Settings) (Provider, error) {
	return NewByName(s.Provider, s.APIKey(), s.UpstreamBaseURL)
}

// NewByName builds a provider by name.
func NewByName(name, apiKey, baseURL string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s not configured (check API key)", name)
	}

	switch name {
	case config.ProviderAnthropic:
		return NewAnthropicProvider(apiKey, baseURL), nil
	case config.ProviderOpenAI:
		return NewOpenAIProvider(apiKey, baseURL), nil
	case config.ProviderGoogle:
		return NewGeminiProvider(apiKey, baseURL), nil
	}
	return nil, fmt.Errorf("unknown provider: %s", name)
}

// newHTTPClient has no overall timeout: streaming bodies may stay open for
// minutes, so deadlines come from the caller's context.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 120 * time.Second,
		},
	}
}
