package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/resilience"
	"github.com/sells-group/sheets-crm/pkg/anthropic"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type verdict struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\": {\"b\": \"}\"}}\n```", `{"a": {"b": "}"}}`, false},
		{"prose", `Sure! Here it is: {"status":"yes"} hope that helps`, `{"status":"yes"}`, false},
		{"array", `result: [1,2,3]`, `[1,2,3]`, false},
		{"none", `no json here`, "", true},
		{"unbalanced", `{"a": 1`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	p, err := New(Config{OpenAIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, p)

	p, err = New(Config{Provider: "Anthropic", AnthropicKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, p)

	_, err = New(Config{Provider: "gemini"})
	assert.Error(t, err)
}

func openAIServer(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewOpenAI("test-key", "", srv.URL+"/v1")
	p.retry = fastRetry()
	return p
}

func TestOpenAI_ChatJSON(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"status\":\"yes\",\"reason\":\"hiring a CFO\"}"}}],"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	})

	var out verdict
	err := p.ChatJSON(context.Background(), []Message{
		{Role: RoleSystem, Content: "Decide."},
		{Role: RoleUser, Content: "{}"},
	}, 0, &out)
	require.NoError(t, err)
	assert.Equal(t, verdict{Status: "yes", Reason: "hiring a CFO"}, out)
}

func TestOpenAI_StatusErrors(t *testing.T) {
	tests := []struct {
		status   int
		attempts int32
	}{
		{http.StatusTooManyRequests, 1},
		{http.StatusUnauthorized, 1},
		{http.StatusServiceUnavailable, 3},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			p := openAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
			})

			err := p.ChatJSON(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, 0, &verdict{})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode())
			assert.Equal(t, tt.attempts, calls.Load())
		})
	}
}

func TestOpenAI_NonJSONContent(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"I cannot help"}}]}`))
	})

	err := p.ChatJSON(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, 0, &verdict{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-JSON")
}

type fakeAnthropic struct {
	req  anthropic.MessageRequest
	resp *anthropic.MessageResponse
	err  error
}

func (f *fakeAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestAnthropic_ChatJSON(t *testing.T) {
	fake := &fakeAnthropic{resp: &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "```json\n{\"status\":\"no\",\"reason\":\"\"}\n```"}},
	}}
	p := NewAnthropic(fake, "")
	p.retry = fastRetry()

	var out verdict
	err := p.ChatJSON(context.Background(), []Message{
		{Role: RoleSystem, Content: "Decide."},
		{Role: RoleUser, Content: "{}"},
	}, 0.4, &out)
	require.NoError(t, err)
	assert.Equal(t, "no", out.Status)

	assert.Equal(t, defaultAnthropicModel, fake.req.Model)
	assert.Contains(t, fake.req.System, "Decide.")
	assert.Contains(t, fake.req.System, jsonOnlyInstruction)
	require.Len(t, fake.req.Messages, 1)
	assert.Equal(t, RoleUser, fake.req.Messages[0].Role)
	require.NotNil(t, fake.req.Temperature)
	assert.InDelta(t, 0.4, *fake.req.Temperature, 0.0001)
}

func TestAnthropic_EmptyContent(t *testing.T) {
	p := NewAnthropic(&fakeAnthropic{resp: &anthropic.MessageResponse{}}, "claude-sonnet-4-5-20250929")
	err := p.ChatJSON(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, 0, &verdict{})
	assert.Error(t, err)
}
