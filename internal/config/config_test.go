package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("TWILIO_REPLY_MODE", "")
	t.Setenv("SESSION_BACKEND", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("expected default llm provider openai, got %s", cfg.LLMProvider)
	}
	if cfg.TwilioReplyMode != "twiml" {
		t.Fatalf("expected twiml reply mode by default, got %s", cfg.TwilioReplyMode)
	}
	if cfg.SessionBackend != "memory" {
		t.Fatalf("expected memory session backend, got %s", cfg.SessionBackend)
	}
	if cfg.DeliveryMaxAttempts != 1 {
		t.Fatalf("expected a single delivery attempt by default, got %d", cfg.DeliveryMaxAttempts)
	}
	if cfg.CompletionTimeout != 30*time.Second {
		t.Fatalf("expected default completion timeout, got %s", cfg.CompletionTimeout)
	}
	if cfg.KeywordOnly() {
		t.Fatalf("expected completion enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_PROVIDER", " None ")
	t.Setenv("SESSION_BACKEND", "Redis")
	t.Setenv("EXTERNAL_CALL_TIMEOUT", "5s")
	t.Setenv("DELIVERY_MAX_ATTEMPTS", "3")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "verify-me")
	t.Setenv("WEBHOOK_RATE_PER_SECOND", "2.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.KeywordOnly() {
		t.Fatalf("expected keyword-only mode when LLM_PROVIDER=none")
	}
	if cfg.SessionBackend != "redis" {
		t.Fatalf("expected normalized session backend, got %s", cfg.SessionBackend)
	}
	if cfg.ExternalCallTimeout != 5*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.ExternalCallTimeout)
	}
	if cfg.DeliveryMaxAttempts != 3 {
		t.Fatalf("expected delivery attempts override, got %d", cfg.DeliveryMaxAttempts)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.WhatsAppVerifyToken != "verify-me" {
		t.Fatalf("expected verify token override, got %s", cfg.WhatsAppVerifyToken)
	}
	if cfg.WebhookRatePerSecond != 2.5 {
		t.Fatalf("expected webhook rate override, got %v", cfg.WebhookRatePerSecond)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DELIVERY_MAX_ATTEMPTS", "many")
	t.Setenv("COMPLETION_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.DeliveryMaxAttempts != 1 {
		t.Fatalf("expected fallback attempts, got %d", cfg.DeliveryMaxAttempts)
	}
	if cfg.CompletionTimeout != 30*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.CompletionTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected fallback redis tls false")
	}
}

func TestLanguagePrefixes(t *testing.T) {
	cfg := &Config{LanguagePrefixMapJSON: `{"+966":"ar-SA","+44":"en-GB"}`}
	got := cfg.LanguagePrefixes()
	if got["+966"] != "ar-SA" || got["+44"] != "en-GB" {
		t.Fatalf("unexpected prefixes: %v", got)
	}

	cfg.LanguagePrefixMapJSON = "{not json"
	if cfg.LanguagePrefixes() != nil {
		t.Fatalf("expected nil for malformed json")
	}
}
