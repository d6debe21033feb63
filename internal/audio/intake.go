// Package audio turns a provider media reference into a 16 kHz mono PCM buffer.
package audio

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/replybridge/pkg/logging"
)

var (
	// ErrMediaFetch covers every failure to resolve or download the media bytes.
	ErrMediaFetch = errors.New("audio: media fetch failed")
	// ErrDecode is returned when the bytes are not a decodable audio container.
	ErrDecode = errors.New("audio: decode failed")
)

// MediaRef points at an inbound voice note. WhatsApp sets ID, Twilio and Telnyx set URL.
type MediaRef struct {
	Channel     string
	ID          string
	URL         string
	ContentType string
}

func (r MediaRef) String() string {
	if r.ID != "" {
		return r.Channel + ":" + r.ID
	}
	return r.Channel + ":" + r.URL
}

// MediaFetcher downloads the raw bytes behind a reference.
type MediaFetcher interface {
	Fetch(ctx context.Context, ref MediaRef) ([]byte, error)
}

// StatusError reports a non-2xx answer from a media endpoint.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	return true
}

type Option func(*Intake)

// WithFetcher registers the fetcher used for refs of the given channel.
func WithFetcher(channel string, f MediaFetcher) Option {
	return func(i *Intake) {
		if f != nil {
			i.fetchers[strings.ToLower(channel)] = f
		}
	}
}

// WithMaxAttempts bounds the number of fetch attempts for transient failures.
func WithMaxAttempts(n int) Option {
	return func(i *Intake) {
		if n > 0 {
			i.maxAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(i *Intake) {
		if d > 0 {
			i.baseDelay = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(i *Intake) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// Intake resolves, downloads and decodes inbound audio.
type Intake struct {
	fetchers    map[string]MediaFetcher
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration
	logger      *logging.Logger
	tracer      trace.Tracer
}

func NewIntake(logger *logging.Logger, opts ...Option) *Intake {
	if logger == nil {
		logger = logging.Default()
	}
	i := &Intake{
		fetchers:    make(map[string]MediaFetcher),
		maxAttempts: 1,
		baseDelay:   200 * time.Millisecond,
		timeout:     15 * time.Second,
		logger:      logger,
		tracer:      otel.Tracer("replybridge.internal.audio"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// FetchAndNormalize downloads the referenced media and decodes it. Errors wrap
// ErrMediaFetch or ErrDecode.
func (i *Intake) FetchAndNormalize(ctx context.Context, ref MediaRef) (*PCMBuffer, error) {
	ctx, span := i.tracer.Start(ctx, "audio.fetch_and_normalize")
	defer span.End()
	span.SetAttributes(attribute.String("replybridge.media.channel", ref.Channel))

	data, err := i.fetch(ctx, ref)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	buf, err := Decode(data)
	if err != nil {
		span.RecordError(err)
		i.logger.Warn("audio decode failed", "media", ref.String(), "bytes", len(data), "error", err)
		return nil, err
	}
	i.logger.Debug("audio normalized",
		"media", ref.String(),
		"samples", len(buf.Samples),
		"duration", buf.Duration().String(),
	)
	return buf, nil
}

func (i *Intake) fetch(ctx context.Context, ref MediaRef) ([]byte, error) {
	fetcher, ok := i.fetchers[strings.ToLower(ref.Channel)]
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher for channel %q", ErrMediaFetch, ref.Channel)
	}
	if ref.ID == "" && ref.URL == "" {
		return nil, fmt.Errorf("%w: empty media reference", ErrMediaFetch)
	}

	var lastErr error
	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, i.timeout)
		data, err := fetcher.Fetch(attemptCtx, ref)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable(err) || attempt == i.maxAttempts {
			break
		}
		i.logger.Warn("media fetch failed, retrying", "media", ref.String(), "attempt", attempt, "error", err)

		sleep := i.baseDelay*time.Duration(attempt) + time.Duration(rand.Int63n(int64(i.baseDelay)))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrMediaFetch, ctx.Err())
		case <-time.After(sleep):
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrMediaFetch, lastErr)
}
