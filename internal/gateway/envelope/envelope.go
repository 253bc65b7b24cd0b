// Package envelope decodes and validates inbound request bodies into the
// request-local Envelope that the completion gateway consumes.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Kind selects how the upstream prompt is assembled.
type Kind string

const (
	KindExecute Kind = "execute"
	KindChat    Kind = "chat"
	KindAnalyze Kind = "analyze"
)

// Length limits, counted in characters.
const (
	MaxCodeLength         = 100000
	MaxPromptLength       = 10000
	MaxMessageLength      = 10000
	MaxSystemPromptLength = 10000

	// A character may arrive as an escaped surrogate pair such as
	// "\uD83D\uDE00", 12 bytes on the wire.
	maxEscapedCharBytes = 12

	// MaxBodyBytes bounds the raw request body read from the client. It
	// admits the largest valid code request written entirely in escapes.
	MaxBodyBytes = (MaxCodeLength+MaxPromptLength)*maxEscapedCharBytes + 4096

	DefaultLanguage = "python"
)

var languagePattern = regexp.MustCompile(`^[a-zA-Z+#]+$`)

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError describes why a request body was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FieldString is a string field that distinguishes an absent key from an
// explicit null.
type FieldString struct {
	Present bool
	Null    bool
	Value   string
}

// UnmarshalJSON implements json.Unmarshaler. It is only called when the key
// is present, including for null.
func (f *FieldString) UnmarshalJSON(data []byte) error {
	f.Present = true
	if string(bytes.TrimSpace(data)) == "null" {
		f.Null = true
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

// CodeRequest is the wire shape of /execute and /analyze.
type CodeRequest struct {
	Code     string      `json:"code"`
	Language FieldString `json:"language"`
	Prompt   *string     `json:"prompt,omitempty"`
	Stream   bool        `json:"stream"`
}

// ChatRequest is the wire shape of /chat.
type ChatRequest struct {
	Message      string  `json:"message"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
	Stream       bool    `json:"stream"`
}

// Envelope is one validated request. Text is never blank.
type Envelope struct {
	Kind Kind
	// Text is the code for execute/analyze and the message for chat.
	Text string
	// Instruction is the caller's prompt override (execute) or system
	// prompt (chat). Empty when absent.
	Instruction string
	Language    string
	Stream      bool
}

// DecodeCode reads a CodeRequest for kind (execute or analyze).
func DecodeCode(kind Kind, body io.Reader) (*Envelope, error) {
	var req CodeRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	return req.Validate(kind)
}

// DecodeChat reads a ChatRequest.
func DecodeChat(body io.Reader) (*Envelope, error) {
	var req ChatRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	return req.Validate()
}

// Validate checks a CodeRequest and builds its envelope.
func (r CodeRequest) Validate(kind Kind) (*Envelope, error) {
	if err := checkPrimary("code", r.Code, MaxCodeLength); err != nil {
		return nil, err
	}

	language := DefaultLanguage
	if r.Language.Present {
		if r.Language.Null {
			return nil, &ValidationError{Field: "language", Reason: "must be a string"}
		}
		language = r.Language.Value
		if !languagePattern.MatchString(language) {
			return nil, &ValidationError{Field: "language", Reason: "must contain only letters, '+' or '#'"}
		}
	}

	var prompt string
	if r.Prompt != nil {
		if err := checkLength("prompt", *r.Prompt, MaxPromptLength); err != nil {
			return nil, err
		}
		prompt = *r.Prompt
	}

	return &Envelope{
		Kind:        kind,
		Text:        r.Code,
		Instruction: prompt,
		Language:    language,
		Stream:      r.Stream,
	}, nil
}

// Validate checks a ChatRequest and builds its envelope.
func (r ChatRequest) Validate() (*Envelope, error) {
	if err := checkPrimary("message", r.Message, MaxMessageLength); err != nil {
		return nil, err
	}

	var system string
	if r.SystemPrompt != nil {
		if err := checkLength("system_prompt", *r.SystemPrompt, MaxSystemPromptLength); err != nil {
			return nil, err
		}
		system = *r.SystemPrompt
	}

	return &Envelope{
		Kind:        KindChat,
		Text:        r.Message,
		Instruction: system,
		Stream:      r.Stream,
	}, nil
}

func checkPrimary(field, value string, max int) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: "field required"}
	}
	if err := checkLength(field, value, max); err != nil {
		return err
	}
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "cannot be empty"}
	}
	return nil
}

func checkLength(field, value string, max int) error {
	if n := utf8.RuneCountInString(value); n > max {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters (got %d)", max, n)}
	}
	return nil
}

// DecodeError is returned when the body is not a JSON object of the expected
// shape. It is distinct from ValidationError so the boundary can answer 400.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "invalid request body: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

func decode(body io.Reader, v interface{}) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxBodyBytes+1))
	if err != nil {
		return &DecodeError{Err: err}
	}
	if len(data) > MaxBodyBytes {
		return &ValidationError{Reason: fmt.Sprintf("request body exceeds %d bytes", MaxBodyBytes)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &DecodeError{Err: errors.New("empty body")}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
