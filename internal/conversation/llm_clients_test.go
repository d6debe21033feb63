package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/replybridge/pkg/logging"
)

type stubConverseAPI struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (s *stubConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.input = params
	return s.out, s.err
}

func TestBedrockLLMClientMapsRoles(t *testing.T) {
	api := &stubConverseAPI{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: " hi there "}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(3), TotalTokens: aws.Int32(13)},
	}}
	client := NewBedrockLLMClient(api, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), LLMRequest{
		Temperature: 0.5,
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "be brief"},
			{Role: ChatRoleUser, Content: "hello"},
			{Role: ChatRoleAssistant, Content: "hey"},
			{Role: ChatRoleUser, Content: "how are you"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, int32(13), resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.StopReason)

	require.NotNil(t, api.input)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(api.input.ModelId))
	assert.Len(t, api.input.System, 1)
	assert.Len(t, api.input.Messages, 3)
	assert.Equal(t, brtypes.ConversationRoleAssistant, api.input.Messages[1].Role)
}

func TestBedrockLLMClientRejectsEmptyOutput(t *testing.T) {
	api := &stubConverseAPI{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{}},
	}}
	client := NewBedrockLLMClient(api, "model")
	_, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "x"}}})
	require.Error(t, err)
}

func TestBedrockLLMClientRequiresModel(t *testing.T) {
	client := NewBedrockLLMClient(&stubConverseAPI{}, "")
	_, err := client.Complete(context.Background(), LLMRequest{})
	require.Error(t, err)
}

func TestOpenAIClientComplete(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hello back"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9}}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient("sk-test", srv.URL+"/v1", "gpt-test", srv.Client())
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{
		{Role: ChatRoleSystem, Content: "sys"},
		{Role: ChatRoleUser, Content: "hello"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Hello back", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, int32(9), resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-test", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
}

func TestOpenAIClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient("sk-test", srv.URL+"/v1", "gpt-test", srv.Client())
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	require.Error(t, err)
}

func TestNewOpenAIClientValidates(t *testing.T) {
	_, err := NewOpenAIClient("", "", "gpt", nil)
	require.Error(t, err)
	_, err = NewOpenAIClient("key", "", "", nil)
	require.Error(t, err)
}

func TestNewGeminiLLMClientRequiresKey(t *testing.T) {
	_, err := NewGeminiLLMClient(context.Background(), " ", "")
	require.Error(t, err)
}

func TestFallbackLLMClient(t *testing.T) {
	primaryErr := errors.New("primary down")

	t.Run("primary ok", func(t *testing.T) {
		fallback := &stubLLMClient{}
		c := NewFallbackLLMClient(&stubLLMClient{responses: []LLMResponse{{Text: "p"}}}, fallback, logging.Discard())
		resp, err := c.Complete(context.Background(), LLMRequest{})
		require.NoError(t, err)
		assert.Equal(t, "p", resp.Text)
		assert.Equal(t, 0, fallback.calls())
	})

	t.Run("fallback used", func(t *testing.T) {
		c := NewFallbackLLMClient(
			&stubLLMClient{errs: []error{primaryErr}},
			&stubLLMClient{responses: []LLMResponse{{Text: "f"}}},
			logging.Discard(),
		)
		resp, err := c.Complete(context.Background(), LLMRequest{})
		require.NoError(t, err)
		assert.Equal(t, "f", resp.Text)
	})

	t.Run("no fallback", func(t *testing.T) {
		c := NewFallbackLLMClient(&stubLLMClient{errs: []error{primaryErr}}, nil, logging.Discard())
		_, err := c.Complete(context.Background(), LLMRequest{})
		assert.ErrorIs(t, err, primaryErr)
	})

	t.Run("cancelled context skips fallback", func(t *testing.T) {
		fallback := &stubLLMClient{}
		c := NewFallbackLLMClient(&stubLLMClient{errs: []error{primaryErr}}, fallback, logging.Discard())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Complete(ctx, LLMRequest{})
		assert.ErrorIs(t, err, primaryErr)
		assert.Equal(t, 0, fallback.calls())
	})
}
