package config

import (
	"strings"
	"testing"
	"time"
)

func setUpstreamEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("UPSTREAM_PROVIDER", "")
}

func TestLoad_Defaults(t *testing.T) {
	setUpstreamEnv(t)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.Provider != ProviderAnthropic {
		t.Errorf("Provider = %q, want %q", s.Provider, ProviderAnthropic)
	}
	if s.Port != 8002 {
		t.Errorf("Port = %d, want 8002", s.Port)
	}
	if s.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", s.MaxTokens)
	}
	if s.RateLimit.Limit != 100 || s.RateLimit.Window != time.Minute {
		t.Errorf("RateLimit = %+v, want 100 per minute", s.RateLimit)
	}
	if len(s.CORSOrigins) != 1 || s.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", s.CORSOrigins)
	}
	if !s.EnableMetrics {
		t.Error("EnableMetrics should default to true")
	}
	if s.Addr() != "0.0.0.0:8002" {
		t.Errorf("Addr() = %q", s.Addr())
	}
}

func TestLoad_Overrides(t *testing.T) {
	setUpstreamEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("RATE_LIMIT", "2/second")
	t.Setenv("CORS_ORIGINS", "https://a.example/, https://b.example")
	t.Setenv("ENABLE_METRICS", "false")
	t.Setenv("REQUEST_TIMEOUT", "30s")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.Port != 9000 {
		t.Errorf("Port = %d, want 9000", s.Port)
	}
	if s.RateLimit != (Rate{Limit: 2, Window: time.Second}) {
		t.Errorf("RateLimit = %+v", s.RateLimit)
	}
	want := []string{"https://a.example", "https://b.example"}
	if strings.Join(s.CORSOrigins, ",") != strings.Join(want, ",") {
		t.Errorf("CORSOrigins = %v, want %v", s.CORSOrigins, want)
	}
	if s.EnableMetrics {
		t.Error("EnableMetrics should be false")
	}
	if s.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v", s.RequestTimeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing api key",
			env:     map[string]string{"ANTHROPIC_API_KEY": ""},
			wantErr: "ANTHROPIC_API_KEY is required",
		},
		{
			name:    "whitespace api key",
			env:     map[string]string{"ANTHROPIC_API_KEY": "   "},
			wantErr: "ANTHROPIC_API_KEY is required",
		},
		{
			name:    "openai selected without key",
			env:     map[string]string{"UPSTREAM_PROVIDER": "openai"},
			wantErr: "OPENAI_API_KEY is required",
		},
		{
			name:    "unknown provider",
			env:     map[string]string{"UPSTREAM_PROVIDER": "bedrock"},
			wantErr: "unknown UPSTREAM_PROVIDER",
		},
		{
			name:    "bad rate",
			env:     map[string]string{"RATE_LIMIT": "lots"},
			wantErr: "invalid rate",
		},
		{
			name:    "non-positive max tokens",
			env:     map[string]string{"MAX_TOKENS": "0"},
			wantErr: "MAX_TOKENS must be positive",
		},
		{
			name:    "model without known prefix",
			env:     map[string]string{"CLAUDE_MODEL": "llama3"},
			wantErr: "cannot infer upstream provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setUpstreamEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_DetectsProviderFromModel(t *testing.T) {
	setUpstreamEnv(t)
	t.Setenv("CLAUDE_MODEL", "gemini-2.5-flash")
	t.Setenv("GEMINI_API_KEY", "g-key")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Provider != ProviderGoogle {
		t.Errorf("Provider = %q, want %q", s.Provider, ProviderGoogle)
	}
	if s.APIKey() != "g-key" {
		t.Errorf("APIKey() = %q", s.APIKey())
	}
}

func TestGet_Memoized(t *testing.T) {
	setUpstreamEnv(t)

	first, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// Later environment changes must not be observed.
	t.Setenv("PORT", "1234")

	second, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first != second {
		t.Error("Get() returned different snapshots")
	}
	if second.Port != 8002 {
		t.Errorf("Port = %d, snapshot was re-read", second.Port)
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in      string
		want    Rate
		wantErr bool
	}{
		{in: "100/minute", want: Rate{100, time.Minute}},
		{in: "100 per minute", want: Rate{100, time.Minute}},
		{in: "5/Hour", want: Rate{5, time.Hour}},
		{in: "10/5 minutes", want: Rate{10, 5 * time.Minute}},
		{in: "10/30s", want: Rate{10, 30 * time.Second}},
		{in: "1/day", want: Rate{1, 24 * time.Hour}},
		{in: "0/minute", wantErr: true},
		{in: "-1/minute", wantErr: true},
		{in: "ten/minute", wantErr: true},
		{in: "10/fortnight", wantErr: true},
		{in: "10", wantErr: true},
		{in: "10/-5s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRate(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRate(%q) expected error, got %+v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRate(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRate(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRate_String(t *testing.T) {
	tests := []struct {
		rate Rate
		want string
	}{
		{Rate{100, time.Minute}, "100 per 1 minute"},
		{Rate{10, 5 * time.Minute}, "10 per 5 minute"},
		{Rate{3, 90 * time.Second}, "3 per 90 second"},
		{Rate{3, 1500 * time.Millisecond}, "3 per 1.5s"},
	}
	for _, tt := range tests {
		if got := tt.rate.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
