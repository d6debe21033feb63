package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/replybridge/internal/bridge"
	"github.com/wolfman30/replybridge/internal/observability/metrics"
	"github.com/wolfman30/replybridge/pkg/logging"
)

type scriptedSender struct {
	errs  []error
	calls int
}

func (s *scriptedSender) Send(_ context.Context, _ bridge.OutboundReply) (string, error) {
	s.calls++
	if len(s.errs) >= s.calls {
		if err := s.errs[s.calls-1]; err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("id-%d", s.calls), nil
}

func TestDispatcherDeliversThroughChannelSender(t *testing.T) {
	sender := &scriptedSender{}
	d := NewDispatcher(logging.Discard(), WithSender(bridge.ChannelTelnyx, sender))

	res, err := d.Deliver(context.Background(), bridge.OutboundReply{Channel: bridge.ChannelTelnyx, To: "+1", Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ProviderMessageID != "id-1" || res.Attempts != 1 || res.Channel != bridge.ChannelTelnyx {
		t.Errorf("unexpected result %+v", res)
	}
	if !d.Has(bridge.ChannelTelnyx) || d.Has(bridge.ChannelTwilio) {
		t.Errorf("unexpected channel registration")
	}
}

func TestDispatcherUnknownChannel(t *testing.T) {
	d := NewDispatcher(logging.Discard())
	_, err := d.Deliver(context.Background(), bridge.OutboundReply{Channel: bridge.ChannelWhatsApp, To: "+1", Text: "hi"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestDispatcherSingleAttemptByDefault(t *testing.T) {
	sender := &scriptedSender{errs: []error{&SendError{Provider: "twilio", Status: 503}}}
	d := NewDispatcher(logging.Discard(), WithSender(bridge.ChannelTwilio, sender))

	res, err := d.Deliver(context.Background(), bridge.OutboundReply{Channel: bridge.ChannelTwilio, To: "+1", Text: "hi"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Status != 503 {
		t.Errorf("expected wrapped SendError, got %v", err)
	}
	if sender.calls != 1 || res.Attempts != 1 {
		t.Errorf("expected one attempt, got %d", sender.calls)
	}
}

func TestDispatcherRetriesTemporaryFailures(t *testing.T) {
	sender := &scriptedSender{errs: []error{&SendError{Provider: "telnyx", Status: 429}, errors.New("connection reset")}}
	m := metrics.NewBridgeMetrics(prometheus.NewRegistry())
	d := NewDispatcher(logging.Discard(),
		WithSender(bridge.ChannelTelnyx, sender),
		WithMaxAttempts(3),
		WithRetryDelay(time.Millisecond),
		WithDispatchMetrics(m),
	)

	res, err := d.Deliver(context.Background(), bridge.OutboundReply{Channel: bridge.ChannelTelnyx, To: "+1", Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 3 || res.ProviderMessageID != "id-3" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestDispatcherDoesNotRetryPermanentFailures(t *testing.T) {
	sender := &scriptedSender{errs: []error{&SendError{Provider: "twilio", Status: 400}}}
	d := NewDispatcher(logging.Discard(),
		WithSender(bridge.ChannelTwilio, sender),
		WithMaxAttempts(3),
		WithRetryDelay(time.Millisecond),
	)

	if _, err := d.Deliver(context.Background(), bridge.OutboundReply{Channel: bridge.ChannelTwilio, To: "+1", Text: "hi"}); err == nil {
		t.Fatal("expected error")
	}
	if sender.calls != 1 {
		t.Errorf("expected no retry for 400, got %d calls", sender.calls)
	}
}

func TestDispatcherStopsOnCancelledContext(t *testing.T) {
	sender := &scriptedSender{errs: []error{errors.New("reset"), errors.New("reset"), errors.New("reset")}}
	d := NewDispatcher(logging.Discard(),
		WithSender(bridge.ChannelTwilio, sender),
		WithMaxAttempts(3),
		WithRetryDelay(time.Hour),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Deliver(ctx, bridge.OutboundReply{Channel: bridge.ChannelTwilio, To: "+1", Text: "hi"})
	if !errors.Is(err, ErrDeliveryFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
	if sender.calls != 1 {
		t.Errorf("expected one call before cancellation, got %d", sender.calls)
	}
}
