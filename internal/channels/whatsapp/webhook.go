package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// VerifyChallenge answers Meta's subscription handshake. The challenge is echoed only
// when hub.verify_token equals the configured token. hub.mode is not consulted.
func VerifyChallenge(query url.Values, verifyToken string) (string, bool) {
	token := query.Get("hub.verify_token")
	if verifyToken == "" || !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", false
	}
	return query.Get("hub.challenge"), true
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) || len(signature) <= len(prefix) {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}

// FirstMessage decodes a webhook body and returns entry[0].changes[0].value.messages[0].
// A payload that only carries delivery statuses yields (nil, nil).
func FirstMessage(body []byte) (*Message, *Metadata, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	if len(event.Entry) == 0 || len(event.Entry[0].Changes) == 0 {
		return nil, nil, fmt.Errorf("whatsapp: webhook has no entry changes")
	}
	value := event.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return nil, &value.Metadata, nil
	}
	msg := value.Messages[0]
	if msg.From == "" {
		return nil, nil, fmt.Errorf("whatsapp: message %s has no sender", msg.ID)
	}
	return &msg, &value.Metadata, nil
}
