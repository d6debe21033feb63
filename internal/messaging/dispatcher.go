package messaging

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/replybridge/internal/bridge"
	"github.com/wolfman30/replybridge/internal/observability/metrics"
	"github.com/wolfman30/replybridge/pkg/logging"
)

var dispatchTracer = otel.Tracer("replybridge.internal.messaging.dispatch")

// ChannelSender performs one send attempt and returns the provider's message id.
type ChannelSender interface {
	Send(ctx context.Context, reply bridge.OutboundReply) (string, error)
}

type DispatcherOption func(*Dispatcher)

// WithSender registers the sender for a channel.
func WithSender(channel bridge.Channel, sender ChannelSender) DispatcherOption {
	return func(d *Dispatcher) {
		if sender != nil {
			d.senders[channel] = sender
		}
	}
}

// WithMaxAttempts bounds the attempts made for temporary send failures.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

func WithRetryDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if delay > 0 {
			d.baseDelay = delay
		}
	}
}

func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithDispatchMetrics(m *metrics.BridgeMetrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher routes replies to the sender of the channel they arrived on.
type Dispatcher struct {
	senders     map[bridge.Channel]ChannelSender
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration
	metrics     *metrics.BridgeMetrics
	logger      *logging.Logger
}

func NewDispatcher(logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		senders:     make(map[bridge.Channel]ChannelSender),
		maxAttempts: 1,
		baseDelay:   250 * time.Millisecond,
		timeout:     15 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Has reports whether a sender is registered for the channel.
func (d *Dispatcher) Has(channel bridge.Channel) bool {
	_, ok := d.senders[channel]
	return ok
}

// Deliver sends the reply. Every failure wraps ErrDeliveryFailed.
func (d *Dispatcher) Deliver(ctx context.Context, reply bridge.OutboundReply) (bridge.DeliveryResult, error) {
	ctx, span := dispatchTracer.Start(ctx, "messaging.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("replybridge.channel", string(reply.Channel)),
		attribute.String("replybridge.to", reply.To),
	)

	result := bridge.DeliveryResult{Channel: reply.Channel}
	sender, ok := d.senders[reply.Channel]
	if !ok {
		err := fmt.Errorf("%w: no sender for channel %q", ErrDeliveryFailed, reply.Channel)
		span.RecordError(err)
		d.metrics.ObserveDelivery(string(reply.Channel), "unconfigured")
		d.logger.Error("delivery failed", "channel", reply.Channel, "to", reply.To, "error", err)
		return result, err
	}

	var lastErr error
attempts:
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		result.Attempts = attempt
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		id, err := sender.Send(attemptCtx, reply)
		cancel()
		if err == nil {
			result.ProviderMessageID = id
			d.metrics.ObserveDelivery(string(reply.Channel), "ok")
			d.logger.Info("reply delivered",
				"channel", reply.Channel,
				"to", reply.To,
				"provider_message_id", id,
				"attempts", attempt,
			)
			return result, nil
		}
		lastErr = err
		if !temporarySendError(err) || attempt == d.maxAttempts {
			break
		}
		d.logger.Warn("send failed, retrying", "channel", reply.Channel, "to", reply.To, "attempt", attempt, "error", err)

		sleep := d.baseDelay*time.Duration(attempt) + time.Duration(rand.Int63n(int64(d.baseDelay)))
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break attempts
		case <-time.After(sleep):
		}
	}

	err := fmt.Errorf("%w: %w", ErrDeliveryFailed, lastErr)
	span.RecordError(err)
	d.metrics.ObserveDelivery(string(reply.Channel), "error")
	d.logger.Error("delivery failed",
		"channel", reply.Channel,
		"to", reply.To,
		"attempts", result.Attempts,
		"error", lastErr,
	)
	return result, err
}

func temporarySendError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Temporary()
	}
	return true
}

// ProviderSelectionConfig captures the credentials required to build outbound senders.
type ProviderSelectionConfig struct {
	TwilioAccountSID      string
	TwilioAuthToken       string
	TwilioFromNumber      string
	TelnyxAPIKey          string
	TelnyxProfileID       string
	TelnyxFromNumber      string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	GraphAPIBase          string
}

// BuildSenders instantiates a sender for every channel with complete credentials.
// missing maps each skipped channel to the reason it was skipped.
func BuildSenders(cfg ProviderSelectionConfig, logger *logging.Logger) (senders map[bridge.Channel]ChannelSender, missing map[bridge.Channel]string) {
	if logger == nil {
		logger = logging.Default()
	}
	senders = make(map[bridge.Channel]ChannelSender)
	missing = make(map[bridge.Channel]string)

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		senders[bridge.ChannelTwilio] = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		missing[bridge.ChannelTwilio] = "TWILIO_ACCOUNT_SID or TWILIO_AUTH_TOKEN missing"
	}

	if cfg.TelnyxAPIKey != "" && (cfg.TelnyxProfileID != "" || cfg.TelnyxFromNumber != "") {
		senders[bridge.ChannelTelnyx] = NewTelnyxSender(cfg.TelnyxAPIKey, cfg.TelnyxProfileID, cfg.TelnyxFromNumber, logger)
	} else {
		missing[bridge.ChannelTelnyx] = "TELNYX_API_KEY and a messaging profile or from number required"
	}

	if cfg.WhatsAppAccessToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		client := whatsappClient(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID, cfg.GraphAPIBase)
		senders[bridge.ChannelWhatsApp] = NewWhatsAppSender(client)
	} else {
		missing[bridge.ChannelWhatsApp] = "WHATSAPP_ACCESS_TOKEN or WHATSAPP_PHONE_NUMBER_ID missing"
	}
	return senders, missing
}
