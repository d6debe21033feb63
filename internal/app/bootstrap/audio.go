package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/wolfman30/replybridge/internal/audio"
	"github.com/wolfman30/replybridge/internal/bridge"
	appconfig "github.com/wolfman30/replybridge/internal/config"
	"github.com/wolfman30/replybridge/internal/stt"
	"github.com/wolfman30/replybridge/pkg/logging"
)

// AudioStack is everything the pipeline needs to turn voice notes into text.
type AudioStack struct {
	Intake      *audio.Intake
	Transcriber *stt.OpenAITranscriber
	Languages   *audio.LanguageTable
}

// BuildAudio wires media fetchers per channel and the transcriber. It returns nil
// when no transcription credentials exist; audio messages are then acknowledged
// without a reply.
func BuildAudio(cfg *appconfig.Config, logger *logging.Logger) (*AudioStack, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("transcription disabled; OPENAI_API_KEY not set")
		return nil, nil
	}

	languages, err := audio.NewLanguageTable(cfg.LanguagePrefixes(), cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: language table: %w", err)
	}
	transcriber, err := stt.NewOpenAITranscriber(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TranscriptionModel,
		&http.Client{Timeout: cfg.ExternalCallTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: transcriber: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.ExternalCallTimeout}
	opts := []audio.Option{
		audio.WithMaxAttempts(cfg.MediaFetchMaxAttempts),
		audio.WithTimeout(cfg.ExternalCallTimeout),
		audio.WithFetcher(string(bridge.ChannelTwilio), audio.NewURLMediaClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, httpClient)),
		audio.WithFetcher(string(bridge.ChannelTelnyx), audio.NewURLMediaClient("", "", httpClient)),
	}
	if cfg.WhatsAppAccessToken != "" {
		opts = append(opts, audio.WithFetcher(string(bridge.ChannelWhatsApp),
			audio.NewGraphMediaClient(cfg.WhatsAppAccessToken, cfg.GraphAPIBase, httpClient)))
	} else {
		logger.Warn("whatsapp media fetch disabled; WHATSAPP_ACCESS_TOKEN not set")
	}

	return &AudioStack{
		Intake:      audio.NewIntake(logger, opts...),
		Transcriber: transcriber,
		Languages:   languages,
	}, nil
}
