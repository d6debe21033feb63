package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/replybridge/internal/audio"
	"github.com/wolfman30/replybridge/internal/bridge"
)

// ValidateTwilioSignature validates that a request came from Twilio
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	if err := r.ParseForm(); err != nil {
		return false
	}

	payload := buildSignaturePayload(webhookURL, r.PostForm)
	expectedSignature := computeSignature(payload, authToken)

	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// buildSignaturePayload creates the payload string for signature verification
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// URL followed by the sorted key/value pairs
	var payload strings.Builder
	payload.WriteString(url)

	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	return payload.String()
}

// computeSignature computes the HMAC-SHA1 signature
func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// TwilioWebhookRequest represents an incoming Twilio webhook
type TwilioWebhookRequest struct {
	MessageSid        string
	AccountSid        string
	From              string
	To                string
	Body              string
	NumMedia          int
	MediaURLs         []string
	MediaContentTypes []string
}

// Twilio attaches at most 10 media items to a message.
const maxTwilioMedia = 10

// ParseTwilioWebhook parses a Twilio webhook request
func ParseTwilioWebhook(r *http.Request) (*TwilioWebhookRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: failed to parse form: %v", ErrWebhookPayload, err)
	}

	req := &TwilioWebhookRequest{
		MessageSid: r.FormValue("MessageSid"),
		AccountSid: r.FormValue("AccountSid"),
		From:       r.FormValue("From"),
		To:         r.FormValue("To"),
		Body:       r.FormValue("Body"),
	}
	if raw := strings.TrimSpace(r.FormValue("NumMedia")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxTwilioMedia {
			return nil, fmt.Errorf("%w: invalid NumMedia %q", ErrWebhookPayload, raw)
		}
		req.NumMedia = n
	}
	for i := 0; i < req.NumMedia; i++ {
		req.MediaURLs = append(req.MediaURLs, r.FormValue(fmt.Sprintf("MediaUrl%d", i)))
		req.MediaContentTypes = append(req.MediaContentTypes, r.FormValue(fmt.Sprintf("MediaContentType%d", i)))
	}
	return req, nil
}

// Inbound converts the webhook into a pipeline message. The first audio attachment
// makes it an audio message; anything else is treated as text.
func (t *TwilioWebhookRequest) Inbound() (bridge.InboundMessage, error) {
	from := NormalizeTwilioAddress(t.From)
	if from == "" {
		return bridge.InboundMessage{}, fmt.Errorf("%w: missing From", ErrWebhookPayload)
	}
	msg := bridge.InboundMessage{
		Channel:           bridge.ChannelTwilio,
		ProviderMessageID: t.MessageSid,
		From:              from,
		To:                NormalizeTwilioAddress(t.To),
		Kind:              bridge.KindText,
		Text:              t.Body,
		ReceivedAt:        time.Now().UTC(),
	}
	for i, ct := range t.MediaContentTypes {
		if !strings.HasPrefix(strings.ToLower(ct), "audio/") || t.MediaURLs[i] == "" {
			continue
		}
		msg.Kind = bridge.KindAudio
		msg.Media = audio.MediaRef{
			Channel:     string(bridge.ChannelTwilio),
			URL:         t.MediaURLs[i],
			ContentType: ct,
		}
		break
	}
	return msg, nil
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message *string  `xml:"Message,omitempty"`
}

// TwiMLMessage renders an inline reply for Twilio's webhook response.
func TwiMLMessage(text string) []byte {
	return renderTwiML(twimlResponse{Message: &text})
}

// EmptyTwiML acknowledges a webhook without replying inline.
func EmptyTwiML() []byte {
	return renderTwiML(twimlResponse{})
}

func renderTwiML(resp twimlResponse) []byte {
	body, err := xml.Marshal(resp)
	if err != nil {
		return []byte(xml.Header + `<Response></Response>`)
	}
	return append([]byte(`<?xml version="1.0" encoding="UTF-8"?>`), body...)
}
