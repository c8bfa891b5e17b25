package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/resilience"
	"github.com/sells-group/sheets-crm/pkg/anthropic"
)

const (
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	anthropicMaxTokens    = 1024
	jsonOnlyInstruction   = "Respond with a single JSON object and nothing else."
)

// Anthropic implements Provider on the Messages API. The model is told to
// answer in JSON and the object is extracted from its text.
type Anthropic struct {
	client anthropic.Client
	model  string
	retry  resilience.RetryConfig
}

// NewAnthropic wraps an existing client.
func NewAnthropic(client anthropic.Client, model string) *Anthropic {
	if model == "" {
		model = defaultAnthropicModel
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	return &Anthropic{client: client, model: model, retry: retry}
}

// NewAnthropicFromKey builds the SDK client from an API key.
func NewAnthropicFromKey(apiKey, model string) *Anthropic {
	return NewAnthropic(anthropic.NewClient(apiKey), model)
}

// ChatJSON implements Provider.
func (p *Anthropic) ChatJSON(ctx context.Context, messages []Message, temperature float64, out any) error {
	var system []string
	turns := make([]anthropic.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, anthropic.Message{Role: m.Role, Content: m.Content})
	}
	system = append(system, jsonOnlyInstruction)

	req := anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   anthropicMaxTokens,
		System:      strings.Join(system, "\n\n"),
		Messages:    turns,
		Temperature: &temperature,
	}

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := p.client.CreateMessage(ctx, req)
		if err != nil {
			if status := anthropic.StatusOf(err); status != 0 {
				return nil, &APIError{Provider: "anthropic", Status: status, Message: err.Error(), Err: err}
			}
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return err
	}

	resp.Usage.LogCost(p.model, "chat_json")
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return eris.New("llm: anthropic returned empty content")
	}
	return decode("anthropic", text, out)
}
