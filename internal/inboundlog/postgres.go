// Package inboundlog keeps an append-only record of every accepted inbound message.
package inboundlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/replybridge/internal/bridge"
)

// Entry is one logged inbound message.
type Entry struct {
	ID                string    `json:"id"`
	Channel           string    `json:"channel"`
	Sender            string    `json:"sender"`
	Recipient         string    `json:"recipient,omitempty"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Kind              string    `json:"kind"`
	Message           string    `json:"message"`
	ReceivedAt        time.Time `json:"received_at"`
}

func entryFrom(msg bridge.InboundMessage, text string) Entry {
	received := msg.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	return Entry{
		ID:                uuid.NewString(),
		Channel:           string(msg.Channel),
		Sender:            msg.From,
		Recipient:         msg.To,
		ProviderMessageID: msg.ProviderMessageID,
		Kind:              string(msg.Kind),
		Message:           text,
		ReceivedAt:        received.UTC(),
	}
}

// PostgresRecorder writes entries to the inbound_messages table.
type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	if db == nil {
		panic("inboundlog: db cannot be nil")
	}
	return &PostgresRecorder{db: db}
}

// Record inserts one inbound message.
func (r *PostgresRecorder) Record(ctx context.Context, msg bridge.InboundMessage, text string) error {
	e := entryFrom(msg, text)
	query := `
		INSERT INTO inbound_messages (
			id, channel, sender, recipient, provider_message_id, kind, message, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.Channel,
		e.Sender,
		nullString(e.Recipient),
		nullString(e.ProviderMessageID),
		e.Kind,
		e.Message,
		e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("inboundlog: failed to insert inbound message: %w", err)
	}
	return nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Sender  string
	Channel string
	Since   time.Time
	Limit   int
}

// List returns logged messages, newest first.
func (r *PostgresRecorder) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, channel, sender, recipient, provider_message_id, kind, message, received_at
		FROM inbound_messages
		WHERE 1 = 1
	`
	var args []interface{}
	argIdx := 1

	if filter.Sender != "" {
		query += fmt.Sprintf(" AND sender = $%d", argIdx)
		args = append(args, filter.Sender)
		argIdx++
	}
	if filter.Channel != "" {
		query += fmt.Sprintf(" AND channel = $%d", argIdx)
		args = append(args, filter.Channel)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND received_at >= $%d", argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}

	query += " ORDER BY received_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inboundlog: failed to query inbound messages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recipient, providerID sql.NullString
		if err := rows.Scan(&e.ID, &e.Channel, &e.Sender, &recipient, &providerID, &e.Kind, &e.Message, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("inboundlog: failed to scan inbound message: %w", err)
		}
		e.Recipient = recipient.String
		e.ProviderMessageID = providerID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inboundlog: failed to iterate inbound messages: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
