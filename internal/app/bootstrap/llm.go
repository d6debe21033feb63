package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/replybridge/internal/config"
	"github.com/wolfman30/replybridge/internal/conversation"
	"github.com/wolfman30/replybridge/pkg/logging"
)

// BuildLLMClient wires the completion client named by LLM_PROVIDER, wrapped with
// LLM_FALLBACK_PROVIDER when one is configured. It returns a nil client in
// keyword-only mode. Closers release provider SDK clients on shutdown.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (conversation.LLMClient, []io.Closer, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.KeywordOnly() {
		logger.Info("completion disabled; running keyword-only replies")
		return nil, nil, nil
	}

	var closers []io.Closer
	primary, closer, err := buildProvider(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		return nil, nil, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	fallbackName := cfg.LLMFallbackProvider
	if fallbackName == "" || fallbackName == "none" || fallbackName == cfg.LLMProvider {
		logger.Info("completion provider configured", "provider", cfg.LLMProvider)
		return primary, closers, nil
	}
	fallback, closer, err := buildProvider(ctx, fallbackName, cfg, awsCfg)
	if err != nil {
		logger.Warn("fallback completion provider unavailable", "provider", fallbackName, "error", err)
		return primary, closers, nil
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	logger.Info("completion provider configured", "provider", cfg.LLMProvider, "fallback", fallbackName)
	return conversation.NewFallbackLLMClient(primary, fallback, logger), closers, nil
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg *aws.Config) (conversation.LLMClient, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		client, err := conversation.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, &http.Client{Timeout: cfg.CompletionTimeout})
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: openai: %w", err)
		}
		return client, nil, nil
	case "gemini":
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		return client, client, nil
	case "bedrock":
		if awsCfg == nil {
			return nil, nil, fmt.Errorf("bootstrap: bedrock requires aws config")
		}
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for bedrock")
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID), nil, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown LLM provider %q", name)
	}
}
