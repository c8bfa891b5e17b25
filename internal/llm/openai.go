package llm

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/resilience"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI implements Provider with the chat completions API in JSON mode.
type OpenAI struct {
	client *openai.Client
	model  string
	retry  resilience.RetryConfig
}

// NewOpenAI creates an OpenAI provider. An empty baseURL uses the public
// endpoint.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("openai", "chat_completion")
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, retry: retry}
}

// ChatJSON implements Provider.
func (p *OpenAI) ChatJSON(ctx context.Context, messages []Message, temperature float64, out any) error {
	req := openai.ChatCompletionRequest{
		Model:          p.model,
		Messages:       make([]openai.ChatCompletionMessage, len(messages)),
		Temperature:    float32(temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	if temperature == 0 {
		// omitempty would drop a literal zero and the API default is 1.
		req.Temperature = math.SmallestNonzeroFloat32
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		return resp, classifyOpenAI(err)
	})
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return eris.New("llm: openai returned empty content")
	}

	zap.L().Debug("openai completion",
		zap.String("model", p.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return decode("openai", resp.Choices[0].Message.Content, out)
}

// classifyOpenAI converts go-openai's error types into *APIError.
func classifyOpenAI(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: "openai", Status: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: "openai", Status: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	return eris.Wrap(err, "llm: openai request")
}
