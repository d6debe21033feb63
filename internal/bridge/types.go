// Package bridge runs one inbound message through intake, reply resolution and delivery.
package bridge

import (
	"context"
	"time"

	"github.com/wolfman30/replybridge/internal/audio"
)

// Channel identifies the provider a message arrived on and must leave through.
type Channel string

const (
	ChannelTwilio   Channel = "twilio"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelnyx   Channel = "telnyx"
)

// MessageKind discriminates the inbound payload.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindAudio MessageKind = "audio"
)

// InboundMessage is one provider message. Text is set for KindText, Media for KindAudio.
type InboundMessage struct {
	Channel           Channel
	ProviderMessageID string
	From              string
	To                string
	Kind              MessageKind
	Text              string
	Media             audio.MediaRef
	ReceivedAt        time.Time
}

// OutboundReply is the text destined for one sender through one channel.
type OutboundReply struct {
	Channel   Channel
	To        string
	From      string
	Text      string
	InReplyTo string
}

// DeliveryResult describes a completed send.
type DeliveryResult struct {
	Channel           Channel
	ProviderMessageID string
	Attempts          int
}

// Deliverer sends a reply through the channel named in it.
type Deliverer interface {
	Deliver(ctx context.Context, reply OutboundReply) (DeliveryResult, error)
}
