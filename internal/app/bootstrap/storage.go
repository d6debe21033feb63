package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wolfman30/replybridge/internal/bridge"
	appconfig "github.com/wolfman30/replybridge/internal/config"
	"github.com/wolfman30/replybridge/internal/events"
	"github.com/wolfman30/replybridge/internal/inboundlog"
	"github.com/wolfman30/replybridge/pkg/logging"
)

const (
	processedRetention     = 7 * 24 * time.Hour
	processedPurgeInterval = time.Hour
)

// BuildProcessedStore connects the Postgres dedupe table.
func BuildProcessedStore(ctx context.Context, databaseURL string) (*events.ProcessedStore, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	return events.NewProcessedStore(pool), pool, nil
}

// OpenDatabase opens the database/sql handle used by the inbound log.
func OpenDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: ping database: %w", err)
	}
	return db, nil
}

// BuildInboundRecorders combines the CSV and Postgres inbound logs that are configured.
// The Postgres recorder is also returned so the admin API can query it.
func BuildInboundRecorders(cfg *appconfig.Config, db *sql.DB) (bridge.InboundRecorder, *inboundlog.PostgresRecorder) {
	var recorders inboundlog.Multi
	if path := strings.TrimSpace(cfg.InboundLogCSV); path != "" {
		recorders = append(recorders, inboundlog.NewCSVRecorder(path))
	}
	var pg *inboundlog.PostgresRecorder
	if db != nil {
		pg = inboundlog.NewPostgresRecorder(db)
		recorders = append(recorders, pg)
	}
	if len(recorders) == 0 {
		return nil, nil
	}
	return recorders, pg
}

// RunProcessedPurger deletes dedupe rows older than the retention window until ctx ends.
func RunProcessedPurger(ctx context.Context, store *events.ProcessedStore, logger *logging.Logger) {
	ticker := time.NewTicker(processedPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx, time.Now().Add(-processedRetention))
			if err != nil {
				logger.Warn("processed event purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged processed events", "count", n)
			}
		}
	}
}
