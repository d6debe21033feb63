package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/replybridge/internal/bridge"
	"github.com/wolfman30/replybridge/internal/clientconfig"
	appconfig "github.com/wolfman30/replybridge/internal/config"
	"github.com/wolfman30/replybridge/internal/conversation"
	"github.com/wolfman30/replybridge/internal/session"
	"github.com/wolfman30/replybridge/pkg/logging"
)

func keywordConfig() *appconfig.Config {
	return &appconfig.Config{
		LLMProvider:         "none",
		SessionBackend:      "memory",
		ClientConfigBackend: "none",
		TwilioReplyMode:     "twiml",
		DefaultLanguage:     "en-US",
		ExternalCallTimeout: time.Second,
		CompletionTimeout:   time.Second,
		DeliveryMaxAttempts: 1,
	}
}

func TestBuildRequiresConfig(t *testing.T) {
	_, err := Build(context.Background(), nil, nil, logging.Discard())
	require.Error(t, err)
}

func TestBuildKeywordOnlyServesTwilioInline(t *testing.T) {
	app, err := Build(context.Background(), keywordConfig(), nil, logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	form := url.Values{}
	form.Set("MessageSid", "SMboot1")
	form.Set("From", "+15550001111")
	form.Set("To", "+15550002222")
	form.Set("Body", "help")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "You can say hello")

	rr = httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestBuildRejectsAWSBackendWithoutConfig(t *testing.T) {
	cfg := keywordConfig()
	cfg.SessionBackend = "dynamodb"
	_, err := Build(context.Background(), cfg, nil, logging.Discard())
	require.Error(t, err)
}

func TestBuildSessionPersister(t *testing.T) {
	cfg := keywordConfig()

	p, err := BuildSessionPersister(cfg, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	cfg.SessionBackend = "file"
	cfg.SessionFile = filepath.Join(t.TempDir(), "sessions.json")
	p, err = BuildSessionPersister(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &session.FilePersister{}, p)

	cfg.SessionBackend = "redis"
	_, err = BuildSessionPersister(cfg, nil, nil)
	require.Error(t, err)

	cfg.SessionBackend = "dynamodb"
	cfg.SessionTable = "reply_sessions"
	p, err = BuildSessionPersister(cfg, nil, &aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, &session.DynamoPersister{}, p)

	cfg.SessionBackend = "etcd"
	_, err = BuildSessionPersister(cfg, nil, nil)
	require.Error(t, err)
}

func TestBuildRedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := keywordConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.SessionBackend = "redis"
	cfg.ClientConfigBackend = "redis"

	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true)
	require.NotNil(t, client)
	defer client.Close()

	p, err := BuildSessionPersister(cfg, client, nil)
	require.NoError(t, err)
	assert.IsType(t, &session.RedisPersister{}, p)

	loader, err := BuildClientConfigLoader(cfg, client, nil)
	require.NoError(t, err)
	assert.IsType(t, &clientconfig.RedisLoader{}, loader)
}

func TestBuildRedisClientUnreachable(t *testing.T) {
	cfg := keywordConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.Discard(), true))
}

func TestBuildClientConfigLoader(t *testing.T) {
	cfg := keywordConfig()

	loader, err := BuildClientConfigLoader(cfg, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, loader)

	cfg.ClientConfigBackend = "file"
	cfg.ClientConfigDir = t.TempDir()
	loader, err = BuildClientConfigLoader(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &clientconfig.FileLoader{}, loader)

	cfg.ClientConfigBackend = "s3"
	_, err = BuildClientConfigLoader(cfg, nil, &aws.Config{Region: "us-east-1"})
	require.Error(t, err, "bucket is required")

	cfg.ClientConfigBucket = "reply-configs"
	loader, err = BuildClientConfigLoader(cfg, nil, &aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, &clientconfig.S3Loader{}, loader)
}

func TestBuildLLMClient(t *testing.T) {
	ctx := context.Background()
	cfg := keywordConfig()

	client, _, err := BuildLLMClient(ctx, cfg, nil, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, client)

	cfg.LLMProvider = "openai"
	_, _, err = BuildLLMClient(ctx, cfg, nil, logging.Discard())
	require.Error(t, err, "api key is required")

	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIModel = "gpt-4o-mini"
	client, _, err = BuildLLMClient(ctx, cfg, nil, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &conversation.OpenAIClient{}, client)

	cfg.LLMFallbackProvider = "bedrock"
	cfg.BedrockModelID = "anthropic.claude-3-haiku"
	client, _, err = BuildLLMClient(ctx, cfg, &aws.Config{Region: "us-east-1"}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &conversation.FallbackLLMClient{}, client)

	cfg.LLMFallbackProvider = "gemini"
	client, _, err = BuildLLMClient(ctx, cfg, nil, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &conversation.OpenAIClient{}, client, "unusable fallback is skipped")

	cfg.LLMProvider = "mystery"
	_, _, err = BuildLLMClient(ctx, cfg, nil, logging.Discard())
	require.Error(t, err)
}

func TestBuildDispatcherRegistersConfiguredChannels(t *testing.T) {
	cfg := keywordConfig()
	cfg.TwilioAccountSID = "AC123"
	cfg.TwilioAuthToken = "token"
	cfg.TwilioFromNumber = "+15550009999"

	d := BuildDispatcher(cfg, nil, logging.Discard())
	assert.True(t, d.Has(bridge.ChannelTwilio))
	assert.False(t, d.Has(bridge.ChannelWhatsApp))
	assert.False(t, d.Has(bridge.ChannelTelnyx))
}

func TestBuildAudio(t *testing.T) {
	cfg := keywordConfig()

	stack, err := BuildAudio(cfg, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, stack)

	cfg.OpenAIAPIKey = "sk-test"
	cfg.WhatsAppAccessToken = "wa-token"
	stack, err = BuildAudio(cfg, logging.Discard())
	require.NoError(t, err)
	require.NotNil(t, stack)
	assert.Equal(t, "ar-SA", stack.Languages.Lookup("+966501234567"))

	cfg.DefaultLanguage = "not a tag!"
	_, err = BuildAudio(cfg, logging.Discard())
	require.Error(t, err)
}

func TestBuildInboundRecorders(t *testing.T) {
	cfg := keywordConfig()

	rec, pg := BuildInboundRecorders(cfg, nil)
	assert.Nil(t, rec)
	assert.Nil(t, pg)

	cfg.InboundLogCSV = filepath.Join(t.TempDir(), "users.csv")
	rec, pg = BuildInboundRecorders(cfg, nil)
	require.NotNil(t, rec)
	assert.Nil(t, pg)

	err := rec.Record(context.Background(), bridge.InboundMessage{
		Channel: bridge.ChannelTwilio,
		From:    "+15550001111",
		Kind:    bridge.KindText,
	}, "hello")
	require.NoError(t, err)
	data, err := os.ReadFile(cfg.InboundLogCSV)
	require.NoError(t, err)
	assert.Contains(t, string(data), "+15550001111")
}
