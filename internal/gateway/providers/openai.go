package providers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider handles OpenAI API requests
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. baseURL, when set, must
// include the API version path (e.g. https://host/v1).
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = newHTTPClient()

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
	}
}

// Complete makes a chat completion request to OpenAI
func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.convertRequest(prompt, false))
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	model := resp.Model
	if model == "" {
		model = prompt.Model
	}

	return &Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Stream creates a streaming chat completion request
func (p *OpenAIProvider) Stream(ctx context.Context, prompt Prompt) (StreamReader, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.convertRequest(prompt, true))
	if err != nil {
		return nil, fmt.Errorf("OpenAI streaming API error: %w", err)
	}

	return &OpenAIStreamReader{stream: stream}, nil
}

func (p *OpenAIProvider) convertRequest(prompt Prompt, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.User,
	})

	req := openai.ChatCompletionRequest{
		Model:     prompt.Model,
		Messages:  messages,
		MaxTokens: prompt.MaxTokens,
		Stream:    stream,
	}
	if stream {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return req
}

// OpenAIStreamReader wraps OpenAI's stream
type OpenAIStreamReader struct {
	stream *openai.ChatCompletionStream
	usage  Usage
}

// Recv reads the next non-empty content delta
func (r *OpenAIStreamReader) Recv() (string, error) {
	for {
		chunk, err := r.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("OpenAI stream error: %w", err)
		}

		if chunk.Usage != nil {
			r.usage = Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return chunk.Choices[0].Delta.Content, nil
		}
	}
}

// Usage returns the usage block sent at the end of the stream
func (r *OpenAIStreamReader) Usage() Usage {
	return r.usage
}

// Close closes the stream
func (r *OpenAIStreamReader) Close() error {
	r.stream.Close()
	return nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}
