// Package replies decides the outgoing text for an inbound message.
package replies

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/replybridge/internal/clientconfig"
	"github.com/wolfman30/replybridge/internal/observability/metrics"
	"github.com/wolfman30/replybridge/pkg/logging"
)

// Source names the layer that produced a reply.
type Source string

const (
	SourceCustom     Source = "custom"
	SourceGreeting   Source = "greeting"
	SourceHelp       Source = "help"
	SourceInfo       Source = "info"
	SourceReset      Source = "reset"
	SourceGoodbye    Source = "goodbye"
	SourceCompletion Source = "completion"
	SourceFallback   Source = "fallback"
)

type Reply struct {
	Text   string
	Source Source
}

// Completer produces a reply for unmatched text and never fails.
type Completer interface {
	Complete(ctx context.Context, sender, text string) string
}

// SessionResetter clears one sender's history.
type SessionResetter interface {
	Clear(ctx context.Context, sender string) error
}

type Option func(*Resolver)

// WithCompleter enables the completion fallback. Without it the resolver runs in
// keyword-only mode.
func WithCompleter(c Completer) Option {
	return func(r *Resolver) { r.completer = c }
}

func WithMetrics(m *metrics.BridgeMetrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

type Resolver struct {
	rules     *RuleSet
	configs   clientconfig.Loader
	sessions  SessionResetter
	completer Completer
	metrics   *metrics.BridgeMetrics
	logger    *logging.Logger
}

func NewResolver(rules *RuleSet, configs clientconfig.Loader, sessions SessionResetter, logger *logging.Logger, opts ...Option) *Resolver {
	if sessions == nil {
		panic("replies: session resetter cannot be nil")
	}
	if rules == nil {
		rules = DefaultRuleSet()
	}
	if configs == nil {
		configs = clientconfig.StaticLoader{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Resolver{
		rules:    rules,
		configs:  configs,
		sessions: sessions,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// KeywordOnly reports whether unmatched text gets the static fallback.
func (r *Resolver) KeywordOnly() bool {
	return r.completer == nil
}

// Resolve always returns a non-empty reply. The first matching layer wins: custom
// command, then the rule set in order, then completion.
func (r *Resolver) Resolve(ctx context.Context, sender, text string) Reply {
	reply := r.resolve(ctx, sender, text)
	if strings.TrimSpace(reply.Text) == "" {
		reply = Reply{Text: r.rules.NotUnderstood, Source: SourceFallback}
	}
	r.metrics.ObserveReplySource(string(reply.Source))
	return reply
}

func (r *Resolver) resolve(ctx context.Context, sender, text string) Reply {
	normalized := Normalize(text)
	if normalized == "" {
		return Reply{Text: r.rules.NotUnderstood, Source: SourceFallback}
	}

	cfg, err := r.configs.Load(ctx, sender)
	if err != nil {
		if errors.Is(err, clientconfig.ErrConfigLoad) {
			r.logger.Warn("client config unreadable, using defaults", "sender", sender, "error", err)
		} else {
			r.logger.Error("client config lookup failed, using defaults", "sender", sender, "error", err)
		}
		cfg = clientconfig.Default()
	}

	if literal, ok := cfg.Command(normalized); ok {
		return Reply{Text: literal, Source: SourceCustom}
	}

	for _, rule := range r.rules.Rules {
		if rule.KeywordOnly && !r.KeywordOnly() {
			continue
		}
		if !rule.Matches(normalized) {
			continue
		}
		switch rule.Action {
		case ActionGreeting:
			if cfg.Greeting != "" {
				return Reply{Text: cfg.Greeting, Source: SourceGreeting}
			}
			return Reply{Text: rule.Reply, Source: SourceGreeting}
		case ActionHelp:
			return Reply{Text: rule.Reply, Source: SourceHelp}
		case ActionInfo:
			return Reply{Text: rule.Reply, Source: SourceInfo}
		case ActionGoodbye:
			return Reply{Text: rule.Reply, Source: SourceGoodbye}
		case ActionReset:
			if err := r.sessions.Clear(ctx, sender); err != nil {
				r.logger.Error("session reset failed", "sender", sender, "error", err)
				return Reply{Text: r.rules.ResetFailed, Source: SourceReset}
			}
			r.logger.Info("session reset by sender", "sender", sender)
			return Reply{Text: rule.Reply, Source: SourceReset}
		}
	}

	if r.completer == nil {
		return Reply{Text: r.rules.NotUnderstood, Source: SourceFallback}
	}
	return Reply{Text: r.completer.Complete(ctx, sender, strings.TrimSpace(text)), Source: SourceCompletion}
}
