package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider handles Google Gemini API requests
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// GeminiRequest represents a request to Gemini's API
type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent represents content in Gemini format
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart represents a part of the content
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiGenerationConfig represents generation parameters
type GeminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

// GeminiResponse represents a response from Gemini API
type GeminiResponse struct {
	Candidates    []GeminiCandidate `json:"candidates"`
	UsageMetadata GeminiUsage       `json:"usageMetadata"`
	ModelVersion  string            `json:"modelVersion"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GeminiCandidate represents a candidate response
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

// GeminiUsage represents token usage
type GeminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(apiKey, baseURL string) *GeminiProvider {
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &GeminiProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
}

// Complete makes a generateContent request to Gemini
func (p *GeminiProvider) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	resp, err := p.do(ctx, prompt.Model, "generateContent", p.convertRequest(prompt))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: reading response: %w", err)
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	text := candidateText(geminiResp)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	model := geminiResp.ModelVersion
	if model == "" {
		model = prompt.Model
	}

	return &Completion{
		Text:  text,
		Model: model,
		Usage: Usage{
			InputTokens:  geminiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

// Stream makes a streamGenerateContent request
func (p *GeminiProvider) Stream(ctx context.Context, prompt Prompt) (StreamReader, error) {
	resp, err := p.do(ctx, prompt.Model, "streamGenerateContent", p.convertRequest(prompt))
	if err != nil {
		return nil, err
	}

	return &GeminiStreamReader{
		reader: bufio.NewReader(resp.Body),
		resp:   resp,
	}, nil
}

func (p *GeminiProvider) do(ctx context.Context, model, method string, geminiReq GeminiRequest) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:%s", p.baseURL, url.PathEscape(model), method)
	if method == "streamGenerateContent" {
		endpoint += "?alt=sse"
	}

	reqBody, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &APIError{Provider: "Gemini", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// GeminiStreamReader wraps the HTTP response for streaming
type GeminiStreamReader struct {
	reader *bufio.Reader
	resp   *http.Response
	usage  Usage
}

// Recv reads the next streaming chunk with text
func (r *GeminiStreamReader) Recv() (string, error) {
	for {
		line, err := r.reader.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", err
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		dataStr := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var geminiResp GeminiResponse
		if err := json.Unmarshal([]byte(dataStr), &geminiResp); err != nil {
			continue
		}
		if geminiResp.Error != nil {
			return "", fmt.Errorf("Gemini stream error (code %d): %s", geminiResp.Error.Code, geminiResp.Error.Message)
		}

		// usageMetadata is cumulative; the last chunk carries the totals.
		if geminiResp.UsageMetadata.TotalTokenCount > 0 {
			r.usage = Usage{
				InputTokens:  geminiResp.UsageMetadata.PromptTokenCount,
				OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			}
		}

		if text := candidateText(geminiResp); text != "" {
			return text, nil
		}
	}
}

// Usage returns the latest usage totals
func (r *GeminiStreamReader) Usage() Usage {
	return r.usage
}

// Close closes the stream
func (r *GeminiStreamReader) Close() error {
	if r.resp != nil && r.resp.Body != nil {
		return r.resp.Body.Close()
	}
	return nil
}

func candidateText(resp GeminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}
	return content.String()
}

// convertRequest converts to Gemini format
func (p *GeminiProvider) convertRequest(prompt Prompt) GeminiRequest {
	geminiReq := GeminiRequest{
		Contents: []GeminiContent{{
			Role:  "user",
			Parts: []GeminiPart{{Text: prompt.User}},
		}},
	}

	if prompt.System != "" {
		geminiReq.SystemInstruction = &GeminiContent{
			Parts: []GeminiPart{{Text: prompt.System}},
		}
	}
	if prompt.MaxTokens > 0 {
		geminiReq.GenerationConfig = &GeminiGenerationConfig{MaxOutputTokens: prompt.MaxTokens}
	}

	return geminiReq
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "google"
}
