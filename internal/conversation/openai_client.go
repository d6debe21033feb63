package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient completes conversations with the OpenAI chat completions API or any
// endpoint that speaks the same protocol.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client. baseURL is optional and must include the /v1 suffix.
func NewOpenAIClient(apiKey, baseURL, model string, httpClient *http.Client) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: openai api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("conversation: openai model is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := c.model
	if strings.TrimSpace(req.Model) != "" {
		model = req.Model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: block})
	}
	for _, msg := range req.Messages {
		var role string
		switch msg.Role {
		case ChatRoleSystem:
			role = openai.ChatMessageRoleSystem
		case ChatRoleUser:
			role = openai.ChatMessageRoleUser
		case ChatRoleAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			return LLMResponse{}, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if req.TopP > 0 {
		chatReq.TopP = req.TopP
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return LLMResponse{}, errors.New("conversation: openai returned no choices")
	}

	choice := resp.Choices[0]
	return LLMResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}
