// Package llm is the chat-completion seam for AI steps: a provider takes a
// conversation and decodes a JSON object answer into a Go value.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Role values for Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Provider answers a conversation with a JSON object decoded into out.
type Provider interface {
	ChatJSON(ctx context.Context, messages []Message, temperature float64, out any) error
}

// APIError carries the upstream HTTP status of a failed completion.
type APIError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: %s error (status %d): %s", e.Provider, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

// Config selects and configures a provider.
type Config struct {
	Provider string // "openai" or "anthropic"

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	AnthropicKey   string
	AnthropicModel string
}

// ErrNotConfigured is returned when the selected provider has no key.
var ErrNotConfigured = eris.New("llm: provider not configured")

// New builds the configured provider.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		if cfg.OpenAIKey == "" {
			return nil, eris.Wrap(ErrNotConfigured, "llm: missing openai key")
		}
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, eris.Wrap(ErrNotConfigured, "llm: missing anthropic key")
		}
		return NewAnthropicFromKey(cfg.AnthropicKey, cfg.AnthropicModel), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// decode parses content as a JSON object, tolerating surrounding prose or
// code fences.
func decode(provider, content string, out any) error {
	raw, err := ExtractJSON(content)
	if err != nil {
		zap.L().Debug("llm: non-JSON completion", zap.String("provider", provider), zap.String("content", truncate(content, 300)))
		return eris.Wrapf(err, "llm: %s returned non-JSON", provider)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return eris.Wrapf(err, "llm: decode %s answer", provider)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
