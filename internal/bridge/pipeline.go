package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/replybridge/internal/audio"
	"github.com/wolfman30/replybridge/internal/observability/metrics"
	"github.com/wolfman30/replybridge/internal/replies"
	"github.com/wolfman30/replybridge/pkg/logging"
)

var (
	// ErrInvalidMessage marks an inbound message without a sender or with an unknown kind.
	ErrInvalidMessage = errors.New("bridge: invalid inbound message")
	// ErrAudio wraps media fetch, decode and transcription failures.
	ErrAudio = errors.New("bridge: audio intake failed")
	// ErrNoDeliverer is returned when a reply must be sent but no deliverer is configured.
	ErrNoDeliverer = errors.New("bridge: no deliverer configured")
	// ErrDelivery wraps a failed send of a resolved reply. The provider message id is
	// already marked processed, so a redelivery of the same message is skipped.
	ErrDelivery = errors.New("bridge: reply delivery failed")
)

// Acknowledged reports whether err ends processing of a message that must not be
// retried by the provider: the message was accepted and its outcome is final.
func Acknowledged(err error) bool {
	return errors.Is(err, ErrAudio) || errors.Is(err, ErrDelivery) || errors.Is(err, ErrNoDeliverer)
}

// ProcessedStore remembers provider message ids. MarkProcessed returns false for an id
// that was marked before.
type ProcessedStore interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// InboundRecorder logs accepted messages. Failures never stop the pipeline.
type InboundRecorder interface {
	Record(ctx context.Context, msg InboundMessage, text string) error
}

// MediaIntake downloads and normalizes inbound audio.
type MediaIntake interface {
	FetchAndNormalize(ctx context.Context, ref audio.MediaRef) (*audio.PCMBuffer, error)
}

// Transcriber turns normalized audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, buf *audio.PCMBuffer, languageTag string) (string, error)
}

// LanguageResolver picks the recognition language for a sender.
type LanguageResolver interface {
	Lookup(sender string) string
}

// ReplyResolver selects the reply text for a sender's message.
type ReplyResolver interface {
	Resolve(ctx context.Context, sender, text string) replies.Reply
}

// Outcome describes what happened to one inbound message.
type Outcome struct {
	Reply      replies.Reply
	Transcript string
	Duplicate  bool
	Inline     bool
	Delivered  bool
	Delivery   DeliveryResult
}

type Option func(*Pipeline)

func WithProcessedStore(store ProcessedStore) Option {
	return func(p *Pipeline) {
		p.processed = store
	}
}

func WithRecorder(recorder InboundRecorder) Option {
	return func(p *Pipeline) {
		p.recorder = recorder
	}
}

// WithAudio enables voice messages. Without it audio messages fail with ErrAudio.
func WithAudio(intake MediaIntake, transcriber Transcriber, languages LanguageResolver) Option {
	return func(p *Pipeline) {
		p.intake = intake
		p.transcriber = transcriber
		p.languages = languages
	}
}

func WithDeliverer(d Deliverer) Option {
	return func(p *Pipeline) {
		p.deliverer = d
	}
}

func WithMetrics(m *metrics.BridgeMetrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// HandleOption adjusts a single Handle call.
type HandleOption func(*handleOptions)

type handleOptions struct {
	inline bool
}

// InlineReply returns the reply in the Outcome instead of delivering it, for channels
// that answer in the webhook response body.
func InlineReply() HandleOption {
	return func(o *handleOptions) {
		o.inline = true
	}
}

// Pipeline runs inbound messages through intake, reply resolution and delivery.
type Pipeline struct {
	resolver    ReplyResolver
	processed   ProcessedStore
	recorder    InboundRecorder
	intake      MediaIntake
	transcriber Transcriber
	languages   LanguageResolver
	deliverer   Deliverer
	locks       *senderLocks
	metrics     *metrics.BridgeMetrics
	logger      *logging.Logger
	tracer      trace.Tracer
}

func NewPipeline(resolver ReplyResolver, logger *logging.Logger, opts ...Option) *Pipeline {
	if resolver == nil {
		panic("bridge: reply resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Pipeline{
		resolver: resolver,
		locks:    newSenderLocks(),
		logger:   logger,
		tracer:   otel.Tracer("replybridge.internal.bridge"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes one inbound message. Messages from the same sender are resolved and
// delivered one at a time.
func (p *Pipeline) Handle(ctx context.Context, msg InboundMessage, opts ...HandleOption) (Outcome, error) {
	var o handleOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := p.tracer.Start(ctx, "bridge.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("replybridge.channel", string(msg.Channel)),
		attribute.String("replybridge.kind", string(msg.Kind)),
		attribute.String("replybridge.provider_message_id", msg.ProviderMessageID),
	)

	if strings.TrimSpace(msg.From) == "" {
		p.metrics.ObserveInbound(string(msg.Channel), "invalid")
		return Outcome{}, fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if msg.Kind != KindText && msg.Kind != KindAudio {
		p.metrics.ObserveInbound(string(msg.Channel), "invalid")
		return Outcome{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, msg.Kind)
	}

	if p.processed != nil && msg.ProviderMessageID != "" {
		first, err := p.processed.MarkProcessed(ctx, string(msg.Channel), msg.ProviderMessageID)
		if err != nil {
			p.logger.Warn("processed store unavailable, continuing", "channel", msg.Channel, "message_id", msg.ProviderMessageID, "error", err)
		} else if !first {
			p.metrics.ObserveInbound(string(msg.Channel), "duplicate")
			p.logger.Info("duplicate inbound message skipped", "channel", msg.Channel, "message_id", msg.ProviderMessageID)
			return Outcome{Duplicate: true}, nil
		}
	}

	p.record(ctx, msg)

	text := msg.Text
	var transcript string
	if msg.Kind == KindAudio {
		var err error
		transcript, err = p.transcribe(ctx, msg)
		if err != nil {
			span.RecordError(err)
			p.metrics.ObserveInbound(string(msg.Channel), "audio_failed")
			p.logger.Warn("audio message dropped", "channel", msg.Channel, "sender", msg.From, "media", msg.Media.String(), "error", err)
			return Outcome{}, err
		}
		text = transcript
	}
	p.metrics.ObserveInbound(string(msg.Channel), "accepted")

	unlock := p.locks.lock(msg.From)
	defer unlock()

	reply := p.resolver.Resolve(ctx, msg.From, text)
	span.SetAttributes(attribute.String("replybridge.reply_source", string(reply.Source)))
	out := Outcome{Reply: reply, Transcript: transcript}

	if o.inline {
		out.Inline = true
		return out, nil
	}
	if p.deliverer == nil {
		span.RecordError(ErrNoDeliverer)
		return out, ErrNoDeliverer
	}

	result, err := p.deliverer.Deliver(ctx, OutboundReply{
		Channel:   msg.Channel,
		To:        msg.From,
		From:      msg.To,
		Text:      reply.Text,
		InReplyTo: msg.ProviderMessageID,
	})
	out.Delivery = result
	if err != nil {
		span.RecordError(err)
		return out, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	out.Delivered = true
	return out, nil
}

func (p *Pipeline) record(ctx context.Context, msg InboundMessage) {
	if p.recorder == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if msg.Kind == KindAudio {
		text = "[audio] " + msg.Media.String()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	if err := p.recorder.Record(context.WithoutCancel(ctx), msg, text); err != nil {
		p.logger.Warn("inbound log write failed", "channel", msg.Channel, "sender", msg.From, "error", err)
	}
}

func (p *Pipeline) transcribe(ctx context.Context, msg InboundMessage) (string, error) {
	if p.intake == nil || p.transcriber == nil {
		p.metrics.ObserveTranscription("disabled")
		return "", fmt.Errorf("%w: voice messages are not enabled", ErrAudio)
	}

	buf, err := p.intake.FetchAndNormalize(ctx, msg.Media)
	if err != nil {
		p.metrics.ObserveTranscription("intake_error")
		return "", fmt.Errorf("%w: %w", ErrAudio, err)
	}

	tag := ""
	if p.languages != nil {
		tag = p.languages.Lookup(msg.From)
	}
	transcript, err := p.transcriber.Transcribe(ctx, buf, tag)
	if err != nil {
		p.metrics.ObserveTranscription("error")
		return "", fmt.Errorf("%w: %w", ErrAudio, err)
	}
	p.metrics.ObserveTranscription("ok")
	p.logger.Debug("voice message transcribed", "sender", msg.From, "language", tag, "chars", len(transcript))
	return transcript, nil
}
