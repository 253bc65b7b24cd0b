package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Upstream provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// Settings holds all configuration for the gateway. A Settings value is
// treated as immutable once Load returns it.
type Settings struct {
	// Upstream
	Provider        string `envconfig:"UPSTREAM_PROVIDER"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	UpstreamBaseURL string `envconfig:"UPSTREAM_BASE_URL"`
	Model           string `envconfig:"CLAUDE_MODEL" default:"claude-3-5-sonnet-20241022"`
	MaxTokens       int    `envconfig:"MAX_TOKENS" default:"4096"`

	// Server
	Environment       string   `envconfig:"ENVIRONMENT" default:"development"`
	Host              string   `envconfig:"HOST" default:"0.0.0.0"`
	Port              int      `envconfig:"PORT" default:"8002"`
	CORSOrigins       []string `envconfig:"CORS_ORIGINS" default:"*"`
	TrustProxyHeaders bool     `envconfig:"TRUST_PROXY_HEADERS" default:"false"`

	// Rate limiting
	RateLimit Rate   `envconfig:"RATE_LIMIT" default:"100/minute"`
	RedisURL  string `envconfig:"REDIS_URL"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"120s"`
	HealthTimeout  time.Duration `envconfig:"HEALTH_TIMEOUT" default:"10s"`

	// Observability
	EnableMetrics bool   `envconfig:"ENABLE_METRICS" default:"true"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"json"`
}

var (
	once     sync.Once
	settings *Settings
	loadErr  error
)

// Get returns the process-wide settings snapshot. The first call loads it;
// every later call returns the same pointer and error without re-reading
// the environment.
func Get() (*Settings, error) {
	once.Do(func() {
		settings, loadErr = Load()
	})
	return settings, loadErr
}

// Load reads configuration from an optional .env file and the environment,
// applies defaults and validates the result.
func Load() (*Settings, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	if s.Provider == "" {
		s.Provider = detectProvider(s.Model)
	}

	switch s.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
	case "":
		return fmt.Errorf("cannot infer upstream provider from model %q (set UPSTREAM_PROVIDER)", s.Model)
	default:
		return fmt.Errorf("unknown UPSTREAM_PROVIDER %q", s.Provider)
	}

	if strings.TrimSpace(s.APIKey()) == "" {
		return fmt.Errorf("%s is required", apiKeyEnv(s.Provider))
	}
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("CLAUDE_MODEL must not be empty")
	}
	if s.MaxTokens <= 0 {
		return fmt.Errorf("MAX_TOKENS must be positive, got %d", s.MaxTokens)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", s.Port)
	}
	if s.RequestTimeout <= 0 || s.HealthTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT and HEALTH_TIMEOUT must be positive")
	}

	s.CORSOrigins = normalizeOrigins(s.CORSOrigins)
	return nil
}

// APIKey returns the key of the selected upstream provider.
func (s *Settings) APIKey() string {
	switch s.Provider {
	case ProviderOpenAI:
		return s.OpenAIAPIKey
	case ProviderGoogle:
		return s.GeminiAPIKey
	default:
		return s.AnthropicAPIKey
	}
}

// Addr is the listen address built from Host and Port.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// detectProvider determines which provider a model belongs to
func detectProvider(model string) string {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "gemini-"):
		return ProviderGoogle
	}
	return ""
}

func apiKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GEMINI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

// normalizeOrigins trims whitespace and trailing slashes; CORS origins must
// not carry a path.
func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
		if origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}
