package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wolfman30/replybridge/cmd/mainconfig"
	"github.com/wolfman30/replybridge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/replybridge/internal/config"
	"github.com/wolfman30/replybridge/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting replybridge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
		"twilio_reply_mode", cfg.TwilioReplyMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	app, err := bootstrap.Build(ctx, cfg, &awsCfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close resources", "error", err)
		}
	}()
	app.Start(ctx)

	return serve(ctx, newServer(cfg, app.Handler), logger)
}

func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	// completion and delivery run inside the webhook request
	writeTimeout := cfg.CompletionTimeout + 2*cfg.ExternalCallTimeout + 5*time.Second
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

// serve runs srv until ctx is cancelled, then drains in-flight webhooks.
func serve(ctx context.Context, srv *http.Server, logger *logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
