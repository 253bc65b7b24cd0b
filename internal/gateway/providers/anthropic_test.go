package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func readAll(t *testing.T, r StreamReader) ([]string, error) {
	t.Helper()
	var out []string
	for {
		frag, err := r.Recv()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var got AnthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"msg_1","model":"claude-3-5-sonnet-20241022","content":[{"type":"text","text":"first"},{"type":"text","text":"second"}],"usage":{"input_tokens":10,"output_tokens":20}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("sk-test", srv.URL)
	resp, err := p.Complete(context.Background(), Prompt{
		Model:     "claude-3-5-sonnet-20241022",
		System:    "be brief",
		User:      "hello",
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if resp.Text != "first" {
		t.Errorf("Text = %q, want first text block", resp.Text)
	}
	if resp.Usage != (Usage{InputTokens: 10, OutputTokens: 20}) {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if got.System != "be brief" || got.MaxTokens != 64 || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestAnthropicProvider_CompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(error) bool
	}{
		{
			name:   "non-2xx",
			status: http.StatusTooManyRequests,
			body:   `{"type":"error","error":{"type":"rate_limit_error"}}`,
			wantErr: func(err error) bool {
				var apiErr *APIError
				return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
			},
		},
		{
			name:    "malformed body",
			status:  http.StatusOK,
			body:    `{not json`,
			wantErr: func(err error) bool { return strings.Contains(err.Error(), "failed to parse response") },
		},
		{
			name:    "no text block",
			status:  http.StatusOK,
			body:    `{"content":[],"usage":{}}`,
			wantErr: func(err error) bool { return errors.Is(err, ErrEmptyResponse) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewAnthropicProvider("k", srv.URL).Complete(context.Background(), Prompt{User: "x", MaxTokens: 1})
			if err == nil || !tt.wantErr(err) {
				t.Errorf("Complete() error = %v", err)
			}
		})
	}
}

const anthropicSSE = `event: message_start
data: {"type":"message_start","message":{"model":"claude-3-5-sonnet-20241022","usage":{"input_tokens":12,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: ping
data: {"type":"ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo, "}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"world"}}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}

event: message_stop
data: {"type":"message_stop"}
`

func TestAnthropicProvider_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AnthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream flag not set")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(anthropicSSE))
	}))
	defer srv.Close()

	stream, err := NewAnthropicProvider("k", srv.URL).Stream(context.Background(), Prompt{User: "hi", MaxTokens: 10})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	frags, err := readAll(t, stream)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if strings.Join(frags, "|") != "Hel|lo, |world" {
		t.Errorf("fragments = %q", frags)
	}
	if stream.Usage() != (Usage{InputTokens: 12, OutputTokens: 7}) {
		t.Errorf("Usage() = %+v", stream.Usage())
	}
}

func TestAnthropicProvider_StreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "error event",
			body: `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"par"}}

data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}
`,
			wantErr: "overloaded_error: Overloaded",
		},
		{
			name: "truncated body",
			body: `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"par"}}
`,
			wantErr: io.ErrUnexpectedEOF.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			stream, err := NewAnthropicProvider("k", srv.URL).Stream(context.Background(), Prompt{User: "hi", MaxTokens: 10})
			if err != nil {
				t.Fatalf("Stream() error = %v", err)
			}
			defer stream.Close()

			frags, err := readAll(t, stream)
			if len(frags) != 1 || frags[0] != "par" {
				t.Errorf("fragments = %q", frags)
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestAnthropicProvider_StreamOpenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewAnthropicProvider("k", srv.URL).Stream(context.Background(), Prompt{User: "hi", MaxTokens: 10})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Stream() error = %v, want 401 APIError", err)
	}
}
