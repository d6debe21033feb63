package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/replybridge/cmd/mainconfig"
	"github.com/wolfman30/replybridge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/replybridge/internal/config"
	"github.com/wolfman30/replybridge/internal/conversation"
	"github.com/wolfman30/replybridge/internal/session"
	"github.com/wolfman30/replybridge/pkg/logging"
)

// llmtest sends one or more user turns through the configured completion
// provider chain and prints each reply with the resulting history length.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	sender := flag.String("sender", "+15550000000", "sender address used as the session key")
	timeout := flag.Duration("timeout", 60*time.Second, "overall deadline")
	flag.Parse()

	turns := flag.Args()
	if len(turns) == 0 {
		turns = []string{"Hi! Who are you?", "Answer again in Arabic, briefly."}
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, logger, *sender, turns, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, sender string, turns []string, out io.Writer) error {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	llm, closers, err := bootstrap.BuildLLMClient(ctx, cfg, &awsCfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if llm == nil {
		return errors.New("LLM_PROVIDER is none; nothing to test")
	}
	return converse(ctx, cfg, llm, logger, sender, turns, out)
}

func converse(ctx context.Context, cfg *appconfig.Config, llm conversation.LLMClient, logger *logging.Logger, sender string, turns []string, out io.Writer) error {
	store := session.NewStore(logger, session.WithSystemPrompt(cfg.SystemPrompt))
	completer := conversation.NewCompleter(store, llm, logger,
		conversation.WithTimeout(cfg.CompletionTimeout),
		conversation.WithDegradedReply(cfg.DegradedReply),
	)

	fmt.Fprintf(out, "provider=%s fallback=%s\n", cfg.LLMProvider, orNone(cfg.LLMFallbackProvider))
	for i, text := range turns {
		start := time.Now()
		reply := completer.Complete(ctx, sender, text)
		history, err := store.GetOrCreate(ctx, sender)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		fmt.Fprintf(out, "[%d] user: %s\n", i+1, text)
		fmt.Fprintf(out, "    reply (%s): %s\n", time.Since(start).Round(time.Millisecond), reply)
		fmt.Fprintf(out, "    history entries: %d\n", len(history))
		if reply == completer.DegradedReply() {
			return errors.New("completion failed; degraded reply returned")
		}
	}
	return nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
