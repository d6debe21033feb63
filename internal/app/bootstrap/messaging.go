package bootstrap

import (
	"sort"

	"github.com/wolfman30/replybridge/internal/bridge"
	appconfig "github.com/wolfman30/replybridge/internal/config"
	"github.com/wolfman30/replybridge/internal/messaging"
	"github.com/wolfman30/replybridge/internal/observability/metrics"
	"github.com/wolfman30/replybridge/pkg/logging"
)

// BuildDispatcher registers a sender for every channel whose credentials are present.
// Channels without credentials are logged and replies to them fail delivery.
func BuildDispatcher(cfg *appconfig.Config, m *metrics.BridgeMetrics, logger *logging.Logger) *messaging.Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	senders, missing := messaging.BuildSenders(messaging.ProviderSelectionConfig{
		TwilioAccountSID:      cfg.TwilioAccountSID,
		TwilioAuthToken:       cfg.TwilioAuthToken,
		TwilioFromNumber:      cfg.TwilioFromNumber,
		TelnyxAPIKey:          cfg.TelnyxAPIKey,
		TelnyxProfileID:       cfg.TelnyxMessagingProfileID,
		TelnyxFromNumber:      cfg.TelnyxFromNumber,
		WhatsAppAccessToken:   cfg.WhatsAppAccessToken,
		WhatsAppPhoneNumberID: cfg.WhatsAppPhoneNumberID,
		GraphAPIBase:          cfg.GraphAPIBase,
	}, logger)

	opts := []messaging.DispatcherOption{
		messaging.WithMaxAttempts(cfg.DeliveryMaxAttempts),
		messaging.WithSendTimeout(cfg.ExternalCallTimeout),
		messaging.WithDispatchMetrics(m),
	}
	for _, channel := range sortedChannels(senders) {
		opts = append(opts, messaging.WithSender(channel, senders[channel]))
		logger.Info("delivery channel configured", "channel", channel)
	}
	for channel, reason := range missing {
		logger.Warn("delivery channel disabled", "channel", channel, "reason", reason)
	}
	return messaging.NewDispatcher(logger, opts...)
}

func sortedChannels(senders map[bridge.Channel]messaging.ChannelSender) []bridge.Channel {
	out := make([]bridge.Channel, 0, len(senders))
	for ch := range senders {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
