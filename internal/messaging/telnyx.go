package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/replybridge/internal/audio"
	"github.com/wolfman30/replybridge/internal/bridge"
)

const telnyxEventMessageReceived = "message.received"

// TelnyxWebhook is the envelope Telnyx posts for messaging events.
type TelnyxWebhook struct {
	Data struct {
		EventType  string        `json:"event_type"`
		ID         string        `json:"id"`
		OccurredAt time.Time     `json:"occurred_at"`
		Payload    TelnyxMessage `json:"payload"`
	} `json:"data"`
}

type TelnyxMessage struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Text      string `json:"text"`
	From      struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"from"`
	To []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"to"`
	Media []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"media"`
}

// ParseTelnyxWebhook decodes a Telnyx event. ok is false for events other than an
// inbound message, which callers acknowledge without processing.
func ParseTelnyxWebhook(body []byte) (bridge.InboundMessage, bool, error) {
	var hook TelnyxWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return bridge.InboundMessage{}, false, fmt.Errorf("%w: %v", ErrWebhookPayload, err)
	}
	if hook.Data.EventType == "" {
		return bridge.InboundMessage{}, false, fmt.Errorf("%w: missing event_type", ErrWebhookPayload)
	}
	if hook.Data.EventType != telnyxEventMessageReceived {
		return bridge.InboundMessage{}, false, nil
	}

	p := hook.Data.Payload
	from := NormalizeE164(p.From.PhoneNumber)
	if from == "" {
		return bridge.InboundMessage{}, false, fmt.Errorf("%w: missing from.phone_number", ErrWebhookPayload)
	}
	msg := bridge.InboundMessage{
		Channel:           bridge.ChannelTelnyx,
		ProviderMessageID: p.ID,
		From:              from,
		Kind:              bridge.KindText,
		Text:              p.Text,
		ReceivedAt:        hook.Data.OccurredAt,
	}
	if msg.ProviderMessageID == "" {
		msg.ProviderMessageID = hook.Data.ID
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	if len(p.To) > 0 {
		msg.To = NormalizeE164(p.To[0].PhoneNumber)
	}
	for _, m := range p.Media {
		if strings.HasPrefix(strings.ToLower(m.ContentType), "audio/") && m.URL != "" {
			msg.Kind = bridge.KindAudio
			msg.Media = audio.MediaRef{Channel: string(bridge.ChannelTelnyx), URL: m.URL, ContentType: m.ContentType}
			break
		}
	}
	return msg, true, nil
}

// VerifyTelnyxSignature checks the HMAC-SHA256 of "<timestamp>.<body>" and rejects
// timestamps outside maxSkew.
func VerifyTelnyxSignature(secret, timestamp, signature string, payload []byte, maxSkew time.Duration) error {
	if secret == "" {
		return errors.New("messaging: telnyx webhook secret not configured")
	}
	ts := strings.TrimSpace(timestamp)
	if ts == "" {
		return errors.New("messaging: missing telnyx signature timestamp")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("messaging: invalid telnyx signature timestamp: %w", err)
	}
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	if diff := time.Since(time.Unix(sec, 0)); diff > maxSkew || diff < -maxSkew {
		return fmt.Errorf("messaging: telnyx signature timestamp skew %s exceeds limit", diff)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	expected := hex.EncodeToString(mac.Sum(nil))
	actual := strings.ToLower(strings.TrimSpace(signature))
	if actual == "" {
		return errors.New("messaging: missing telnyx signature header")
	}
	if !hmac.Equal([]byte(expected), []byte(actual)) {
		return errors.New("messaging: telnyx signature mismatch")
	}
	return nil
}
