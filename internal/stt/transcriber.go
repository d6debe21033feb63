// Package stt sends normalized audio to a speech recognition service.
package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/language"

	"github.com/wolfman30/replybridge/internal/audio"
	"github.com/wolfman30/replybridge/pkg/logging"
)

// ErrTranscription wraps every speech recognition failure, including empty transcripts.
var ErrTranscription = errors.New("stt: transcription failed")

var tracer = otel.Tracer("replybridge.internal.stt")

type Transcriber interface {
	Transcribe(ctx context.Context, buf *audio.PCMBuffer, languageTag string) (string, error)
}

// OpenAITranscriber uses the Whisper transcription endpoint.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

// NewOpenAITranscriber builds a transcriber. baseURL is optional and must include /v1.
func NewOpenAITranscriber(apiKey, baseURL, model string, httpClient *http.Client, logger *logging.Logger) (*OpenAITranscriber, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("stt: openai api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.Whisper1
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAITranscriber{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}, nil
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, buf *audio.PCMBuffer, languageTag string) (string, error) {
	if buf == nil || len(buf.Samples) == 0 {
		return "", fmt.Errorf("%w: empty audio buffer", ErrTranscription)
	}
	ctx, span := tracer.Start(ctx, "stt.transcribe")
	defer span.End()

	lang := isoLanguage(languageTag)
	span.SetAttributes(attribute.String("replybridge.stt.language", lang))

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "voice.wav",
		Reader:   bytes.NewReader(buf.WAV()),
		Language: lang,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty transcript", ErrTranscription)
	}
	t.logger.Debug("stt: transcription complete", "language", lang, "length", len(text), "duration", buf.Duration().String())
	return text, nil
}

// isoLanguage reduces a BCP-47 tag to the ISO-639-1 code Whisper accepts.
func isoLanguage(tag string) string {
	if strings.TrimSpace(tag) == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	base, _ := parsed.Base()
	return base.String()
}
