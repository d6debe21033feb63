package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/replybridge/internal/bridge"
	"github.com/wolfman30/replybridge/pkg/logging"
)

var twilioSendTracer = otel.Tracer("replybridge.internal.messaging.twilio_send")

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioSender posts SMS and WhatsApp messages using Twilio's REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilioSender builds a sender with sane defaults.
func NewTwilioSender(accountSID, authToken, defaultFrom string, logger *logging.Logger) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       defaultFrom,
		baseURL:    defaultTwilioBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// SetBaseURL points the sender at another API host (tests).
func (s *TwilioSender) SetBaseURL(base string) {
	if base = strings.TrimSpace(base); base != "" {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// Send dispatches a single message. A whatsapp: recipient gets a whatsapp: sender.
func (s *TwilioSender) Send(ctx context.Context, reply bridge.OutboundReply) (string, error) {
	if s.accountSID == "" || s.authToken == "" {
		return "", errors.New("messaging: twilio credentials missing")
	}
	if reply.To == "" {
		return "", errors.New("messaging: to required")
	}
	from := reply.From
	if from == "" {
		from = s.from
	}
	if from == "" {
		return "", errors.New("messaging: from required")
	}
	if strings.HasPrefix(reply.To, whatsappPrefix) && !strings.HasPrefix(from, whatsappPrefix) {
		from = whatsappPrefix + from
	}
	if strings.TrimSpace(reply.Text) == "" {
		return "", errors.New("messaging: body required")
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("replybridge.to", reply.To))

	payload := url.Values{}
	payload.Set("To", reply.To)
	payload.Set("From", from)
	payload.Set("Body", reply.Text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return "", fmt.Errorf("messaging: build twilio request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("messaging: twilio request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		sendErr := &SendError{Provider: "twilio", Status: resp.StatusCode, Detail: formatTwilioError(body)}
		span.RecordError(sendErr)
		return "", sendErr
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(body, &parsed)
	s.logger.Info("twilio message sent", "to", reply.To, "sid", parsed.SID, "status", parsed.Status)
	return parsed.SID, nil
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("code %d: %s", parsed.Code, parsed.Message)
		}
		return parsed.Message
	}
	return trimmed
}
