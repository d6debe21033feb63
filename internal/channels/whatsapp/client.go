package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("whatsapp: API error status %d code %d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("whatsapp: unexpected status %d: %s", e.Status, e.Message)
}

// Client sends messages via the WhatsApp Cloud (Graph) API.
type Client struct {
	accessToken   string
	phoneNumberID string
	graphAPIBase  string
	httpClient    *http.Client
}

// NewClient creates a new Graph API client for one business phone number.
func NewClient(accessToken, phoneNumberID string) *Client {
	return &Client{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		graphAPIBase:  defaultGraphAPIBase,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	if base = strings.TrimSpace(base); base != "" {
		c.graphAPIBase = strings.TrimRight(base, "/")
	}
}

// SetHTTPClient replaces the transport; callers use it to bound call time.
func (c *Client) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.httpClient = hc
	}
}

// SendTextMessage sends a plain text message and returns the WhatsApp message id.
func (c *Client) SendTextMessage(ctx context.Context, to, text string) (string, error) {
	if c.accessToken == "" || c.phoneNumberID == "" {
		return "", fmt.Errorf("whatsapp: access token and phone number id are required")
	}
	req := SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimPrefix(to, "+"),
		Type:             "text",
		Text:             SendText{Body: text},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("whatsapp: read response: %w", err)
	}

	var sendResp SendResponse
	_ = json.Unmarshal(respBody, &sendResp)
	if sendResp.Error != nil {
		return "", &APIError{Status: resp.StatusCode, Code: sendResp.Error.Code, Message: sendResp.Error.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	if len(sendResp.Messages) == 0 {
		return "", nil
	}
	return sendResp.Messages[0].ID, nil
}
