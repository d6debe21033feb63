package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/replybridge/internal/observability/metrics"
	"github.com/wolfman30/replybridge/internal/session"
	"github.com/wolfman30/replybridge/pkg/logging"
)

// DefaultDegradedReply is returned to the user whenever a completion cannot be produced.
const DefaultDegradedReply = "Sorry, I can't answer right now. Please try again later."

// HistoryStore is the slice of the session store the completer mutates.
type HistoryStore interface {
	Append(ctx context.Context, sender, role, content string) (session.History, error)
	RemoveLast(ctx context.Context, sender string) error
}

// CompleterOption customizes a Completer.
type CompleterOption func(*Completer)

func WithTimeout(d time.Duration) CompleterOption {
	return func(c *Completer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithDegradedReply(text string) CompleterOption {
	return func(c *Completer) {
		if strings.TrimSpace(text) != "" {
			c.degraded = text
		}
	}
}

func WithModel(model string) CompleterOption {
	return func(c *Completer) { c.model = model }
}

func WithMaxTokens(n int32) CompleterOption {
	return func(c *Completer) { c.maxTokens = n }
}

func WithTemperature(t float32) CompleterOption {
	return func(c *Completer) { c.temperature = t }
}

func WithMetrics(m *metrics.BridgeMetrics) CompleterOption {
	return func(c *Completer) { c.metrics = m }
}

// Completer turns one user message into one assistant reply while keeping the
// sender's history consistent: the user turn is appended before the call and
// removed again if and only if the call does not produce a reply.
type Completer struct {
	store       HistoryStore
	llm         LLMClient
	logger      *logging.Logger
	tracer      trace.Tracer
	metrics     *metrics.BridgeMetrics
	timeout     time.Duration
	degraded    string
	model       string
	maxTokens   int32
	temperature float32
}

func NewCompleter(store HistoryStore, llm LLMClient, logger *logging.Logger, opts ...CompleterOption) *Completer {
	if store == nil {
		panic("conversation: history store cannot be nil")
	}
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Completer{
		store:       store,
		llm:         llm,
		logger:      logger,
		tracer:      otel.Tracer("replybridge.conversation"),
		timeout:     30 * time.Second,
		degraded:    DefaultDegradedReply,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DegradedReply is the text returned when completion fails.
func (c *Completer) DegradedReply() string {
	return c.degraded
}

// Complete never fails; on any error it returns the degraded reply with the history
// exactly as it was before the call.
func (c *Completer) Complete(ctx context.Context, sender, text string) string {
	ctx, span := c.tracer.Start(ctx, "conversation.complete")
	defer span.End()
	span.SetAttributes(attribute.String("sender", sender))

	start := time.Now()
	reply, err := c.complete(ctx, sender, text)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		c.logger.Error("completion failed", "sender", sender, "error", err)
		reply = c.degraded
	}
	c.metrics.ObserveCompletion(outcome, time.Since(start).Seconds())
	return reply
}

func (c *Completer) complete(ctx context.Context, sender, text string) (string, error) {
	history, err := c.store.Append(ctx, sender, session.RoleUser, text)
	if err != nil {
		return "", fmt.Errorf("%w: append user turn: %w", ErrCompletion, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.llm.Complete(callCtx, c.buildRequest(history))
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		c.rollback(ctx, sender)
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}

	reply := strings.TrimSpace(resp.Text)
	if _, err := c.store.Append(ctx, sender, session.RoleAssistant, reply); err != nil {
		// keep the reply but never leave an unpaired user turn behind
		c.logger.Warn("failed to record assistant turn", "sender", sender, "error", err)
		c.rollback(ctx, sender)
	}

	c.logger.Debug("completion succeeded",
		"sender", sender,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return reply, nil
}

func (c *Completer) rollback(ctx context.Context, sender string) {
	// the request context may already be done; the rollback still has to land
	if err := c.store.RemoveLast(context.WithoutCancel(ctx), sender); err != nil {
		c.logger.Error("failed to roll back user turn", "sender", sender, "error", err)
	}
}

func (c *Completer) buildRequest(history session.History) LLMRequest {
	req := LLMRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    make([]ChatMessage, 0, len(history)),
	}
	for _, turn := range history {
		req.Messages = append(req.Messages, ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	return req
}
