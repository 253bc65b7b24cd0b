package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiProvider_Complete(t *testing.T) {
	var got GeminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Errorf("missing api key header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":1,"totalTokenCount":5},"modelVersion":"gemini-2.5-flash"}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("g-key", srv.URL)
	resp, err := p.Complete(context.Background(), Prompt{Model: "gemini-2.5-flash", System: "sys", User: "hi", MaxTokens: 10})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if resp.Text != "ok" || resp.Usage != (Usage{InputTokens: 4, OutputTokens: 1}) {
		t.Errorf("resp = %+v", resp)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("system instruction = %+v", got.SystemInstruction)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.MaxOutputTokens != 10 {
		t.Errorf("generation config = %+v", got.GenerationConfig)
	}
}

func TestGeminiProvider_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q", r.URL.Query().Get("alt"))
		}
		w.Write([]byte(`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"a"}]}}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":1,"totalTokenCount":3}}

data: {"candidates":[{"content":{"role":"model","parts":[{"text":"b"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":2,"totalTokenCount":4}}

`))
	}))
	defer srv.Close()

	stream, err := NewGeminiProvider("g", srv.URL).Stream(context.Background(), Prompt{Model: "gemini-2.5-flash", User: "hi"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	frags, err := readAll(t, stream)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if strings.Join(frags, "") != "ab" {
		t.Errorf("fragments = %q", frags)
	}
	if stream.Usage() != (Usage{InputTokens: 2, OutputTokens: 2}) {
		t.Errorf("Usage() = %+v", stream.Usage())
	}
}
