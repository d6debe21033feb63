package messaging

import (
	"bytes"
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
	"github.com/wolfman30/replybridge/pkg/logging"
)

var telnyxSendTracer = otel.Tracer("replybridge.internal.messaging.telnyx_send")

const defaultTelnyxBaseURL = "https://api.telnyx.com/v2"

// TelnyxSender posts SMS messages using Telnyx's V2 API.
type TelnyxSender struct {
	apiKey             string
	messagingProfileID string
	from               string
	baseURL            string
	httpClient         *http.Client
	logger             *logging.Logger
}

// NewTelnyxSender builds a sender for Telnyx V2 API.
func NewTelnyxSender(apiKey, messagingProfileID, defaultFrom string, logger *logging.Logger) *TelnyxSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		from:               defaultFrom,
		baseURL:            defaultTelnyxBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// SetBaseURL points the sender at another API host (tests).
func (s *TelnyxSender) SetBaseURL(base string) {
	if base = strings.TrimSpace(base); base != "" {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// Send dispatches a single SMS.
func (s *TelnyxSender) Send(ctx context.Context, reply bridge.OutboundReply) (string, error) {
	if s.apiKey == "" {
		return "", errors.New("messaging: telnyx api key missing")
	}
	if reply.To == "" {
		return "", errors.New("messaging: to required")
	}
	from := reply.From
	if from == "" {
		from = s.from
	}
	if from == "" && s.messagingProfileID == "" {
		return "", errors.New("messaging: from or messaging profile required")
	}
	if strings.TrimSpace(reply.Text) == "" {
		return "", errors.New("messaging: body required")
	}

	ctx, span := telnyxSendTracer.Start(ctx, "messaging.telnyx.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("replybridge.to", reply.To),
		attribute.String("replybridge.from", from),
	)

	payload := map[string]interface{}{
		"to":   reply.To,
		"text": reply.Text,
	}
	if from != "" {
		payload["from"] = from
	}
	if s.messagingProfileID != "" {
		payload["messaging_profile_id"] = s.messagingProfileID
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("messaging: failed to marshal telnyx payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("messaging: build telnyx request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("messaging: telnyx request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		sendErr := &SendError{Provider: "telnyx", Status: resp.StatusCode, Detail: formatTelnyxError(body)}
		span.RecordError(sendErr)
		return "", sendErr
	}

	var parsed struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	_ = json.Unmarshal(body, &parsed)
	s.logger.Info("telnyx sms sent", "to", reply.To, "from", from, "id", parsed.Data.ID)
	return parsed.Data.ID, nil
}

func formatTelnyxError(body []byte) string {
	var parsed struct {
		Errors []struct {
			Code   string `json:"code"`
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		e := parsed.Errors[0]
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", e.Title, e.Detail)
		}
		return e.Title
	}
	return strings.TrimSpace(string(body))
}
