// Package session keeps the rolling conversation history of every sender.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/replybridge/pkg/logging"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultSystemPrompt seeds every new history when no prompt is configured.
const DefaultSystemPrompt = "You are a helpful messaging assistant."

// Turn is one role-tagged entry of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the ordered turn log of one sender.
type History []Turn

func (h History) clone() History {
	if h == nil {
		return History{}
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// ErrEmptySender is returned when an operation is called without a sender.
var ErrEmptySender = errors.New("session: sender is required")

type entry struct {
	mu      sync.Mutex
	loaded  bool
	history History
}

// Store owns the mapping from sender to history. Every operation on a sender is
// serialized by that sender's lock; the map itself is never handed out.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	persister Persister
	seed      string
	logger    *logging.Logger
	tracer    trace.Tracer
}

// Option customizes a Store.
type Option func(*Store)

// WithPersister mirrors every mutation to p.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithSystemPrompt overrides the seed system message.
func WithSystemPrompt(prompt string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prompt) != "" {
			s.seed = prompt
		}
	}
}

// NewStore creates an empty store. Without a persister, history lives only in memory.
func NewStore(logger *logging.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		entries: make(map[string]*entry),
		seed:    DefaultSystemPrompt,
		logger:  logger,
		tracer:  otel.Tracer("replybridge.internal.session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SystemPrompt returns the message used to seed new histories.
func (s *Store) SystemPrompt() string {
	return s.seed
}

func (s *Store) entryFor(sender string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sender]
	if !ok {
		e = &entry{}
		s.entries[sender] = e
	}
	return e
}

// ensureLoaded must be called with e.mu held.
func (s *Store) ensureLoaded(ctx context.Context, sender string, e *entry) error {
	if e.loaded {
		return nil
	}
	if s.persister != nil {
		history, ok, err := s.persister.Load(ctx, sender)
		if err != nil {
			return fmt.Errorf("session: load %s: %w", sender, err)
		}
		if ok {
			e.history = history.clone()
		}
	}
	e.loaded = true
	return nil
}

func (s *Store) persist(ctx context.Context, sender string, history History) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, sender, history.clone()); err != nil {
		return fmt.Errorf("session: save %s: %w", sender, err)
	}
	return nil
}

func (s *Store) seedTurn() Turn {
	return Turn{Role: RoleSystem, Content: s.seed}
}

// GetOrCreate returns the sender's history, seeding the system message on first contact.
func (s *Store) GetOrCreate(ctx context.Context, sender string) (History, error) {
	if sender == "" {
		return nil, ErrEmptySender
	}
	ctx, span := s.tracer.Start(ctx, "session.get_or_create")
	defer span.End()

	e := s.entryFor(sender)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.ensureLoaded(ctx, sender, e); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(e.history) == 0 {
		seeded := History{s.seedTurn()}
		if err := s.persist(ctx, sender, seeded); err != nil {
			span.RecordError(err)
			return nil, err
		}
		e.history = seeded
	}
	return e.history.clone(), nil
}

// Append adds a turn, seeding the system message first when the history is empty.
// If persistence fails the history is left as it was.
func (s *Store) Append(ctx context.Context, sender, role, content string) (History, error) {
	if sender == "" {
		return nil, ErrEmptySender
	}
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return nil, fmt.Errorf("session: unsupported role %q", role)
	}
	ctx, span := s.tracer.Start(ctx, "session.append")
	defer span.End()
	span.SetAttributes(attribute.String("replybridge.session.role", role))

	e := s.entryFor(sender)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.ensureLoaded(ctx, sender, e); err != nil {
		span.RecordError(err)
		return nil, err
	}

	next := e.history.clone()
	if len(next) == 0 {
		next = append(next, s.seedTurn())
	}
	next = append(next, Turn{Role: role, Content: content})
	if err := s.persist(ctx, sender, next); err != nil {
		span.RecordError(err)
		return nil, err
	}
	e.history = next
	return next.clone(), nil
}

// RemoveLast drops the most recent turn. It undoes a user turn whose completion failed.
func (s *Store) RemoveLast(ctx context.Context, sender string) error {
	if sender == "" {
		return ErrEmptySender
	}
	ctx, span := s.tracer.Start(ctx, "session.remove_last")
	defer span.End()

	e := s.entryFor(sender)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.ensureLoaded(ctx, sender, e); err != nil {
		span.RecordError(err)
		return err
	}
	if len(e.history) == 0 {
		return nil
	}
	next := e.history.clone()[:len(e.history)-1]
	if err := s.persist(ctx, sender, next); err != nil {
		span.RecordError(err)
		return err
	}
	e.history = next
	return nil
}

// Clear empties one sender's history. The next Append or GetOrCreate reseeds it.
func (s *Store) Clear(ctx context.Context, sender string) error {
	if sender == "" {
		return ErrEmptySender
	}
	ctx, span := s.tracer.Start(ctx, "session.clear")
	defer span.End()

	e := s.entryFor(sender)
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.persister != nil {
		if err := s.persister.Delete(ctx, sender); err != nil {
			span.RecordError(err)
			return fmt.Errorf("session: clear %s: %w", sender, err)
		}
	}
	e.history = nil
	e.loaded = true
	return nil
}

// ResetAll clears every sender's history, including senders only known to the persister.
func (s *Store) ResetAll(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "session.reset_all")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.mu.Lock()
	}
	defer func() {
		for _, e := range s.entries {
			e.mu.Unlock()
		}
	}()

	if s.persister != nil {
		if err := s.persister.DeleteAll(ctx); err != nil {
			span.RecordError(err)
			return fmt.Errorf("session: reset all: %w", err)
		}
	}
	cleared := len(s.entries)
	for _, e := range s.entries {
		e.history = nil
		e.loaded = true
	}
	s.logger.Warn("all session histories cleared", "senders_in_memory", cleared)
	return nil
}

// Snapshot returns a copy of the history without seeding it. ok is false when the sender
// has no turns.
func (s *Store) Snapshot(ctx context.Context, sender string) (History, bool, error) {
	if sender == "" {
		return nil, false, ErrEmptySender
	}
	e := s.entryFor(sender)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.ensureLoaded(ctx, sender, e); err != nil {
		return nil, false, err
	}
	return e.history.clone(), len(e.history) > 0, nil
}
