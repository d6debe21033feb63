package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	appconfig "github.com/wolfman30/replybridge/internal/config"
	"github.com/wolfman30/replybridge/pkg/logging"
)

func TestNewServerTimeoutsCoverCompletion(t *testing.T) {
	cfg := &appconfig.Config{
		Port:                "9090",
		CompletionTimeout:   30 * time.Second,
		ExternalCallTimeout: 15 * time.Second,
	}
	srv := newServer(cfg, http.NotFoundHandler())
	if srv.Addr != ":9090" {
		t.Fatalf("expected addr :9090, got %s", srv.Addr)
	}
	if srv.WriteTimeout <= cfg.CompletionTimeout {
		t.Fatalf("write timeout %s must exceed completion timeout", srv.WriteTimeout)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, logging.Discard()) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}

func TestServeReportsListenError(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1", Handler: http.NotFoundHandler()}
	if err := serve(context.Background(), srv, logging.Discard()); err == nil {
		t.Fatalf("expected listen error")
	}
}

func TestRunKeywordOnlyShutsDown(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		Port:                "0",
		LLMProvider:         "none",
		SessionBackend:      "memory",
		ClientConfigBackend: "none",
		TwilioReplyMode:     "twiml",
		AWSRegion:           "us-east-1",
		CompletionTimeout:   time.Second,
		ExternalCallTimeout: time.Second,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := run(ctx, cfg, logging.Discard()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
