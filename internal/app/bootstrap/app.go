package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/replybridge/internal/api/router"
	"github.com/wolfman30/replybridge/internal/bridge"
	appconfig "github.com/wolfman30/replybridge/internal/config"
	"github.com/wolfman30/replybridge/internal/conversation"
	"github.com/wolfman30/replybridge/internal/events"
	"github.com/wolfman30/replybridge/internal/http/handlers"
	"github.com/wolfman30/replybridge/internal/messaging"
	"github.com/wolfman30/replybridge/internal/observability/metrics"
	"github.com/wolfman30/replybridge/internal/replies"
	"github.com/wolfman30/replybridge/internal/session"
	"github.com/wolfman30/replybridge/pkg/logging"
)

// App is the fully wired bridge service.
type App struct {
	Handler  http.Handler
	Pipeline *bridge.Pipeline
	Sessions *session.Store
	Metrics  *metrics.BridgeMetrics

	processed *events.ProcessedStore
	pool      *pgxpool.Pool
	db        *sql.DB
	redis     *redis.Client
	closers   []io.Closer
	logger    *logging.Logger
}

// Build wires every component from config. awsCfg may be nil when no AWS backend
// is selected.
func Build(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if needsAWS(cfg) && awsCfg == nil {
		return nil, fmt.Errorf("bootstrap: configured backends require aws config")
	}

	app := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.NewBridgeMetrics(registry)

	if needsRedis(cfg) {
		app.redis = BuildRedisClient(ctx, cfg, logger, true)
	}

	persister, err := BuildSessionPersister(cfg, app.redis, awsCfg)
	if err != nil {
		return nil, err
	}
	app.Sessions = BuildSessionStore(cfg, persister, logger)

	configs, err := BuildClientConfigLoader(cfg, app.redis, awsCfg)
	if err != nil {
		return nil, err
	}
	rules, err := replies.LoadRuleSet(cfg.ReplyRulesPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	llm, closers, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closers...)

	resolverOpts := []replies.Option{replies.WithMetrics(app.Metrics)}
	if llm != nil {
		completer := conversation.NewCompleter(app.Sessions, llm, logger,
			conversation.WithTimeout(cfg.CompletionTimeout),
			conversation.WithDegradedReply(cfg.DegradedReply),
			conversation.WithMetrics(app.Metrics),
		)
		resolverOpts = append(resolverOpts, replies.WithCompleter(completer))
	}
	resolver := replies.NewResolver(rules, configs, app.Sessions, logger, resolverOpts...)

	pipelineOpts := []bridge.Option{
		bridge.WithDeliverer(BuildDispatcher(cfg, app.Metrics, logger)),
		bridge.WithMetrics(app.Metrics),
	}

	if cfg.DatabaseURL != "" {
		app.processed, app.pool, err = BuildProcessedStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pipelineOpts = append(pipelineOpts, bridge.WithProcessedStore(app.processed))
		if app.db, err = OpenDatabase(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	} else {
		logger.Info("webhook dedupe kept in memory; DATABASE_URL not set")
		pipelineOpts = append(pipelineOpts, bridge.WithProcessedStore(bridge.NewMemoryProcessedStore(0)))
	}

	recorder, pgRecorder := BuildInboundRecorders(cfg, app.db)
	if recorder != nil {
		pipelineOpts = append(pipelineOpts, bridge.WithRecorder(recorder))
	}

	audioStack, err := BuildAudio(cfg, logger)
	if err != nil {
		return nil, err
	}
	if audioStack != nil {
		pipelineOpts = append(pipelineOpts, bridge.WithAudio(audioStack.Intake, audioStack.Transcriber, audioStack.Languages))
	}

	app.Pipeline = bridge.NewPipeline(resolver, logger, pipelineOpts...)

	twilioToken := cfg.TwilioWebhookSecret
	if twilioToken == "" {
		twilioToken = cfg.TwilioAuthToken
	}
	messagingHandler := messaging.NewHandler(messaging.HandlerConfig{
		TwilioAuthToken:     twilioToken,
		TwilioReplyMode:     cfg.TwilioReplyMode,
		PublicBaseURL:       cfg.PublicBaseURL,
		WhatsAppVerifyToken: cfg.WhatsAppVerifyToken,
		WhatsAppAppSecret:   cfg.WhatsAppAppSecret,
		TelnyxWebhookSecret: cfg.TelnyxWebhookSecret,
	}, app.Pipeline, app.Metrics, logger)

	// pass an untyped nil when the inbound log has no database
	var adminSessions *handlers.AdminSessionsHandler
	if pgRecorder != nil {
		adminSessions = handlers.NewAdminSessionsHandler(app.Sessions, pgRecorder, logger)
	} else {
		adminSessions = handlers.NewAdminSessionsHandler(app.Sessions, nil, logger)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("admin routes disabled; ADMIN_JWT_SECRET not set")
	}

	app.Handler = router.New(&router.Config{
		Logger:               logger,
		MessagingHandler:     messagingHandler,
		AdminSessions:        adminSessions,
		AdminAuthSecret:      cfg.AdminJWTSecret,
		MetricsHandler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		WebhookRatePerSecond: cfg.WebhookRatePerSecond,
		WebhookRateBurst:     cfg.WebhookRateBurst,
	})

	ok = true
	return app, nil
}

// Start launches background maintenance. It returns immediately.
func (a *App) Start(ctx context.Context) {
	if a.processed != nil {
		go RunProcessedPurger(ctx, a.processed, a.logger)
	}
}

// Close releases connections opened by Build.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
