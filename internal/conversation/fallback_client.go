package conversation

import (
	"context"

	"github.com/wolfman30/replybridge/pkg/logging"
)

// FallbackLLMClient wraps a primary LLM client with a fallback provider.
// If the primary fails, the same request is sent once to the fallback.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackLLMClient creates a fallback-enabled client. A nil fallback makes it a
// pass-through to primary.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)
	if c.fallback == nil {
		return LLMResponse{}, err
	}
	// a cancelled or expired context would fail the fallback too
	if ctxErr := ctx.Err(); ctxErr != nil {
		return LLMResponse{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return LLMResponse{}, fallbackErr
	}

	c.logger.Info("fallback LLM succeeded after primary failure")
	return fallbackResp, nil
}
