// Package events persists provider webhook ids so redelivered webhooks are handled once.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errMissingKey = errors.New("events: provider and event id required")

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records webhook message ids in processed_events.
type ProcessedStore struct {
	pool rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithExec(exec rowQuerier) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{pool: exec}
}

// AlreadyProcessed checks if we've seen this provider message id.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	provider, eventID = strings.TrimSpace(provider), strings.TrimSpace(eventID)
	if provider == "" || eventID == "" {
		return false, errMissingKey
	}
	query := `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`
	var exists int
	if err := s.pool.QueryRow(ctx, query, provider, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts a message id for the provider, returning false if it already exists.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	provider, eventID = strings.TrimSpace(provider), strings.TrimSpace(eventID)
	if provider == "" || eventID == "" {
		return false, errMissingKey
	}
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Purge deletes ids recorded before the cutoff and reports how many were removed.
func (s *ProcessedStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("events: purge processed: %w", err)
	}
	return ct.RowsAffected(), nil
}
