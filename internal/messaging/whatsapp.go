package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/replybridge/internal/audio"
	"github.com/wolfman30/replybridge/internal/bridge"
	"github.com/wolfman30/replybridge/internal/channels/whatsapp"
)

// ParseWhatsAppWebhook converts entry[0].changes[0].value.messages[0] into a pipeline
// message. ok is false for status-only payloads. Message types other than text and
// audio become empty text so the sender still gets the fallback reply.
func ParseWhatsAppWebhook(body []byte) (bridge.InboundMessage, bool, error) {
	msg, meta, err := whatsapp.FirstMessage(body)
	if err != nil {
		return bridge.InboundMessage{}, false, fmt.Errorf("%w: %v", ErrWebhookPayload, err)
	}
	if msg == nil {
		return bridge.InboundMessage{}, false, nil
	}

	from := NormalizeE164(msg.From)
	if from == "" {
		return bridge.InboundMessage{}, false, fmt.Errorf("%w: invalid sender %q", ErrWebhookPayload, msg.From)
	}
	in := bridge.InboundMessage{
		Channel:           bridge.ChannelWhatsApp,
		ProviderMessageID: msg.ID,
		From:              from,
		Kind:              bridge.KindText,
		ReceivedAt:        parseUnixSeconds(msg.Timestamp),
	}
	if meta != nil {
		in.To = meta.PhoneNumberID
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return bridge.InboundMessage{}, false, fmt.Errorf("%w: text message without text.body", ErrWebhookPayload)
		}
		in.Text = msg.Text.Body
	case "audio":
		if msg.Audio == nil || msg.Audio.ID == "" {
			return bridge.InboundMessage{}, false, fmt.Errorf("%w: audio message without audio.id", ErrWebhookPayload)
		}
		in.Kind = bridge.KindAudio
		in.Media = audio.MediaRef{
			Channel:     string(bridge.ChannelWhatsApp),
			ID:          msg.Audio.ID,
			ContentType: msg.Audio.MimeType,
		}
	}
	return in, true, nil
}

func parseUnixSeconds(raw string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}

func whatsappClient(token, phoneNumberID, graphBase string) *whatsapp.Client {
	client := whatsapp.NewClient(token, phoneNumberID)
	if graphBase != "" {
		client.SetGraphAPIBase(graphBase)
	}
	return client
}

// WhatsAppSender delivers replies through the Graph API messages endpoint.
type WhatsAppSender struct {
	client *whatsapp.Client
}

func NewWhatsAppSender(client *whatsapp.Client) *WhatsAppSender {
	if client == nil {
		panic("messaging: whatsapp client cannot be nil")
	}
	return &WhatsAppSender{client: client}
}

// Send performs a single send attempt.
func (s *WhatsAppSender) Send(ctx context.Context, reply bridge.OutboundReply) (string, error) {
	if reply.To == "" {
		return "", errors.New("messaging: to required")
	}
	if strings.TrimSpace(reply.Text) == "" {
		return "", errors.New("messaging: body required")
	}
	id, err := s.client.SendTextMessage(ctx, reply.To, reply.Text)
	if err != nil {
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			return "", &SendError{Provider: "whatsapp", Status: apiErr.Status, Detail: apiErr.Message}
		}
		return "", err
	}
	return id, nil
}
