package messaging

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrWebhookPayload marks an inbound payload with a malformed or unexpected shape.
	ErrWebhookPayload = errors.New("messaging: invalid webhook payload")
	// ErrDeliveryFailed wraps every failed outbound send.
	ErrDeliveryFailed = errors.New("messaging: delivery failed")
)

// SendError is a non-2xx answer from a provider's send endpoint.
type SendError struct {
	Provider string
	Status   int
	Detail   string
}

func (e *SendError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s send failed: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s send failed: status %d: %s", e.Provider, e.Status, e.Detail)
}

// Temporary reports whether another attempt could succeed.
func (e *SendError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}
