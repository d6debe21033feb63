package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Twilio (SMS / WhatsApp via Twilio)
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWebhookSecret string
	TwilioFromNumber    string
	TwilioReplyMode     string
	PublicBaseURL       string

	// Telnyx (secondary SMS provider)
	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxFromNumber         string
	TelnyxWebhookSecret      string

	// WhatsApp Business (Graph API)
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	GraphAPIBase          string

	// Completion / transcription
	LLMProvider         string
	LLMFallbackProvider string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIModel         string
	TranscriptionModel  string
	GeminiAPIKey        string
	GeminiModel         string
	BedrockModelID      string
	SystemPrompt        string
	DegradedReply       string

	// Session persistence
	SessionBackend string
	SessionFile    string
	SessionTable   string

	// Per-sender config
	ClientConfigBackend string
	ClientConfigDir     string
	ClientConfigBucket  string
	ClientConfigPrefix  string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	ReplyRulesPath        string
	LanguagePrefixMapJSON string
	DefaultLanguage       string

	InboundLogCSV string
	DatabaseURL   string

	ExternalCallTimeout   time.Duration
	CompletionTimeout     time.Duration
	DeliveryMaxAttempts   int
	MediaFetchMaxAttempts int

	AdminJWTSecret string

	// Per-IP webhook rate limit; zero disables it.
	WebhookRatePerSecond float64
	WebhookRateBurst     int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),
		TwilioFromNumber:    getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioReplyMode:     strings.ToLower(strings.TrimSpace(getEnv("TWILIO_REPLY_MODE", "twiml"))),
		PublicBaseURL:       getEnv("PUBLIC_BASE_URL", ""),

		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxFromNumber:         getEnv("TELNYX_FROM_NUMBER", ""),
		TelnyxWebhookSecret:      getEnv("TELNYX_WEBHOOK_SECRET", ""),

		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		GraphAPIBase:          getEnv("GRAPH_API_BASE", "https://graph.facebook.com/v18.0"),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		TranscriptionModel:  getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		SystemPrompt:        getEnv("SYSTEM_PROMPT", "You are a helpful messaging assistant. Reply briefly, in the language the user writes in."),
		DegradedReply:       getEnv("DEGRADED_REPLY", "⚠️ Sorry, I can't answer right now. Please try again later.\nعذراً، لا أستطيع الرد الآن. حاول لاحقاً."),

		SessionBackend: strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionFile:    getEnv("SESSION_FILE", "sessions.json"),
		SessionTable:   getEnv("SESSION_TABLE", "reply_sessions"),

		ClientConfigBackend: strings.ToLower(strings.TrimSpace(getEnv("CLIENT_CONFIG_BACKEND", "none"))),
		ClientConfigDir:     getEnv("CLIENT_CONFIG_DIR", "clients"),
		ClientConfigBucket:  getEnv("CLIENT_CONFIG_BUCKET", ""),
		ClientConfigPrefix:  getEnv("CLIENT_CONFIG_PREFIX", "clients/"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ReplyRulesPath:        getEnv("REPLY_RULES_PATH", ""),
		LanguagePrefixMapJSON: getEnv("LANGUAGE_PREFIX_MAP_JSON", ""),
		DefaultLanguage:       getEnv("DEFAULT_LANGUAGE", "en-US"),

		InboundLogCSV: getEnv("INBOUND_LOG_CSV", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		ExternalCallTimeout:   getEnvAsDuration("EXTERNAL_CALL_TIMEOUT", 15*time.Second),
		CompletionTimeout:     getEnvAsDuration("COMPLETION_TIMEOUT", 30*time.Second),
		DeliveryMaxAttempts:   getEnvAsInt("DELIVERY_MAX_ATTEMPTS", 1),
		MediaFetchMaxAttempts: getEnvAsInt("MEDIA_FETCH_MAX_ATTEMPTS", 1),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookRateBurst:     getEnvAsInt("WEBHOOK_RATE_BURST", 40),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// LanguagePrefixes decodes LANGUAGE_PREFIX_MAP_JSON. An empty or malformed value yields nil
// so callers fall back to the built-in table.
func (c *Config) LanguagePrefixes() map[string]string {
	raw := strings.TrimSpace(c.LanguagePrefixMapJSON)
	if raw == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// KeywordOnly reports whether completion is disabled and unmatched input gets the
// static fallback reply.
func (c *Config) KeywordOnly() bool {
	return c.LLMProvider == "" || c.LLMProvider == "none"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
