package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/replybridge/internal/bridge"
	"github.com/wolfman30/replybridge/internal/channels/whatsapp"
	"github.com/wolfman30/replybridge/internal/observability/metrics"
	"github.com/wolfman30/replybridge/pkg/logging"
)

var webhookTracer = otel.Tracer("replybridge.internal.messaging.webhooks")

const (
	// ReplyModeTwiML answers Twilio inline in the webhook response.
	ReplyModeTwiML = "twiml"
	// ReplyModeAPI sends Twilio replies through the REST API.
	ReplyModeAPI = "api"

	maxWebhookBody = 1 << 20
)

type inboundProcessor interface {
	Handle(ctx context.Context, msg bridge.InboundMessage, opts ...bridge.HandleOption) (bridge.Outcome, error)
}

// HandlerConfig carries the webhook secrets. An empty secret disables that check.
type HandlerConfig struct {
	TwilioAuthToken     string
	TwilioReplyMode     string
	PublicBaseURL       string
	WhatsAppVerifyToken string
	WhatsAppAppSecret   string
	TelnyxWebhookSecret string
}

// Handler handles messaging webhook requests.
type Handler struct {
	cfg       HandlerConfig
	processor inboundProcessor
	metrics   *metrics.BridgeMetrics
	logger    *logging.Logger
}

// NewHandler creates a new messaging handler.
func NewHandler(cfg HandlerConfig, processor inboundProcessor, m *metrics.BridgeMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if processor == nil {
		panic("messaging: inbound processor cannot be nil")
	}
	cfg.TwilioReplyMode = strings.ToLower(strings.TrimSpace(cfg.TwilioReplyMode))
	if cfg.TwilioReplyMode != ReplyModeAPI {
		cfg.TwilioReplyMode = ReplyModeTwiML
	}
	return &Handler{
		cfg:       cfg,
		processor: processor,
		metrics:   m,
		logger:    logger,
	}
}

// TwilioWebhook handles POST /webhooks/twilio requests.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(string(bridge.ChannelTwilio), time.Since(start).Seconds()) }()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if h.cfg.TwilioAuthToken != "" {
		if !ValidateTwilioSignature(r, h.cfg.TwilioAuthToken, h.signedURL(r)) {
			h.logger.Warn("invalid twilio signature")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(errors.New("invalid twilio signature"))
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	msg, err := webhook.Inbound()
	if err != nil {
		h.logger.Error("invalid twilio payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("replybridge.twilio.message_sid", webhook.MessageSid),
		attribute.String("replybridge.twilio.from", msg.From),
	)

	var opts []bridge.HandleOption
	if h.cfg.TwilioReplyMode == ReplyModeTwiML {
		opts = append(opts, bridge.InlineReply())
	}
	out, err := h.processor.Handle(ctx, msg, opts...)
	if err != nil {
		span.RecordError(err)
		if !h.acknowledge(bridge.ChannelTwilio, msg, err) {
			h.writeProcessError(w, bridge.ChannelTwilio, msg, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err == nil && out.Inline && !out.Duplicate {
		_, _ = w.Write(TwiMLMessage(out.Reply.Text))
		return
	}
	_, _ = w.Write(EmptyTwiML())
}

// WhatsAppVerify handles GET /webhooks/whatsapp subscription handshakes.
func (h *Handler) WhatsAppVerify(w http.ResponseWriter, r *http.Request) {
	challenge, ok := whatsapp.VerifyChallenge(r.URL.Query(), h.cfg.WhatsAppVerifyToken)
	if !ok {
		h.logger.Warn("whatsapp verification rejected", "mode", r.URL.Query().Get("hub.mode"))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// WhatsAppWebhook handles POST /webhooks/whatsapp message notifications.
func (h *Handler) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(string(bridge.ChannelWhatsApp), time.Since(start).Seconds()) }()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if h.cfg.WhatsAppAppSecret != "" {
		if !whatsapp.VerifySignature(h.cfg.WhatsAppAppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
			h.logger.Warn("invalid whatsapp signature")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(errors.New("invalid whatsapp signature"))
			return
		}
	}

	msg, ok, err := ParseWhatsAppWebhook(body)
	if err != nil {
		h.logger.Error("invalid whatsapp payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	span.SetAttributes(attribute.String("replybridge.whatsapp.message_id", msg.ProviderMessageID))

	if _, err := h.processor.Handle(ctx, msg); err != nil {
		span.RecordError(err)
		if !h.acknowledge(bridge.ChannelWhatsApp, msg, err) {
			h.writeProcessError(w, bridge.ChannelWhatsApp, msg, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// TelnyxWebhook handles POST /webhooks/telnyx message events.
func (h *Handler) TelnyxWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.telnyx.webhook")
	defer span.End()
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(string(bridge.ChannelTelnyx), time.Since(start).Seconds()) }()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if h.cfg.TelnyxWebhookSecret != "" {
		if err := VerifyTelnyxSignature(h.cfg.TelnyxWebhookSecret, r.Header.Get("Telnyx-Timestamp"), r.Header.Get("Telnyx-Signature"), body, 0); err != nil {
			h.logger.Warn("invalid telnyx webhook signature", "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(err)
			return
		}
	}

	msg, ok, err := ParseTelnyxWebhook(body)
	if err != nil {
		h.logger.Error("invalid telnyx payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if _, err := h.processor.Handle(ctx, msg); err != nil {
		span.RecordError(err)
		if !h.acknowledge(bridge.ChannelTelnyx, msg, err) {
			h.writeProcessError(w, bridge.ChannelTelnyx, msg, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// acknowledge logs a final processing failure that the provider must not retry.
func (h *Handler) acknowledge(channel bridge.Channel, msg bridge.InboundMessage, err error) bool {
	if !bridge.Acknowledged(err) {
		return false
	}
	if errors.Is(err, bridge.ErrAudio) {
		return true
	}
	h.logger.Error("reply not delivered, acknowledging webhook",
		"channel", channel,
		"sender", msg.From,
		"message_id", msg.ProviderMessageID,
		"error", err,
	)
	return true
}

func (h *Handler) writeProcessError(w http.ResponseWriter, channel bridge.Channel, msg bridge.InboundMessage, err error) {
	if errors.Is(err, bridge.ErrInvalidMessage) {
		h.logger.Warn("inbound message rejected", "channel", channel, "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	h.logger.Error("inbound message processing failed",
		"channel", channel,
		"sender", msg.From,
		"message_id", msg.ProviderMessageID,
		"error", err,
	)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func (h *Handler) signedURL(r *http.Request) string {
	if base := strings.TrimRight(strings.TrimSpace(h.cfg.PublicBaseURL), "/"); base != "" {
		return base + r.URL.RequestURI()
	}
	return buildAbsoluteURL(r)
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
