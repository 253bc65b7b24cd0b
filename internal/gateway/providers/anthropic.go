package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider handles Anthropic Claude API requests
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// AnthropicRequest represents a request to Anthropic's Messages API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []AnthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
}

// AnthropicMessage represents a message in Anthropic format
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicResponse represents a response from Anthropic's API
type AnthropicResponse struct {
	ID      string                  `json:"id"`
	Type    string                  `json:"type"`
	Role    string                  `json:"role"`
	Content []AnthropicContentBlock `json:"content"`
	Model   string                  `json:"model"`
	Usage   AnthropicUsage          `json:"usage"`
}

// AnthropicContentBlock represents a content block
type AnthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnthropicUsage represents token usage
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicStreamEvent covers the fields used from every SSE event type.
type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Model string         `json:"model"`
		Usage AnthropicUsage `json:"usage"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Usage *AnthropicUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
}

// Complete makes a single Messages API call
func (p *AnthropicProvider) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	httpResp, err := p.do(ctx, p.convertRequest(prompt, false))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: reading response: %w", err)
	}

	var anthropicResp AnthropicResponse
	if err := json.Unmarshal(respBody, &anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return p.convertResponse(anthropicResp, prompt.Model)
}

// Stream opens a streaming Messages API call
func (p *AnthropicProvider) Stream(ctx context.Context, prompt Prompt) (StreamReader, error) {
	httpResp, err := p.do(ctx, p.convertRequest(prompt, true))
	if err != nil {
		return nil, err
	}

	return &AnthropicStreamReader{
		reader: bufio.NewReader(httpResp.Body),
		resp:   httpResp,
	}, nil
}

func (p *AnthropicProvider) do(ctx context.Context, anthropicReq AnthropicRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 64<<10))
		return nil, &APIError{Provider: "Anthropic", StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}
	return httpResp, nil
}

// AnthropicStreamReader wraps the HTTP response for streaming
type AnthropicStreamReader struct {
	reader  *bufio.Reader
	resp    *http.Response
	usage   Usage
	stopped bool
}

// Recv reads the next text delta
func (r *AnthropicStreamReader) Recv() (string, error) {
	if r.stopped {
		return "", io.EOF
	}

	for {
		line, err := r.reader.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			if err == io.EOF {
				// The body ended before message_stop.
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		dataStr := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(dataStr), &event); err != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				r.usage.InputTokens = event.Message.Usage.InputTokens
				r.usage.OutputTokens = event.Message.Usage.OutputTokens
			}
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Text != "" {
				return event.Delta.Text, nil
			}
		case "message_delta":
			if event.Usage != nil && event.Usage.OutputTokens > 0 {
				r.usage.OutputTokens = event.Usage.OutputTokens
			}
		case "message_stop":
			r.stopped = true
			return "", io.EOF
		case "error":
			msg := dataStr
			if event.Error != nil {
				msg = event.Error.Type + ": " + event.Error.Message
			}
			return "", fmt.Errorf("Anthropic stream error: %s", msg)
		}
	}
}

// Usage returns the token counts seen so far
func (r *AnthropicStreamReader) Usage() Usage {
	return r.usage
}

// Close closes the stream
func (r *AnthropicStreamReader) Close() error {
	if r.resp != nil && r.resp.Body != nil {
		return r.resp.Body.Close()
	}
	return nil
}

// convertRequest converts to Anthropic format
func (p *AnthropicProvider) convertRequest(prompt Prompt, stream bool) AnthropicRequest {
	return AnthropicRequest{
		Model:     prompt.Model,
		Messages:  []AnthropicMessage{{Role: "user", Content: prompt.User}},
		MaxTokens: prompt.MaxTokens,
		System:    prompt.System,
		Stream:    stream,
	}
}

// convertResponse keeps the first text block, the way the gateway reports
// results.
func (p *AnthropicProvider) convertResponse(resp AnthropicResponse, requestedModel string) (*Completion, error) {
	model := resp.Model
	if model == "" {
		model = requestedModel
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return &Completion{
				Text:  block.Text,
				Model: model,
				Usage: Usage{
					InputTokens:  resp.Usage.InputTokens,
					OutputTokens: resp.Usage.OutputTokens,
				},
			}, nil
		}
	}
	return nil, ErrEmptyResponse
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}
