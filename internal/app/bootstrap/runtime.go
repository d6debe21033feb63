package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/replybridge/internal/clientconfig"
	appconfig "github.com/wolfman30/replybridge/internal/config"
	"github.com/wolfman30/replybridge/internal/session"
	"github.com/wolfman30/replybridge/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// needsRedis reports whether any configured backend reads from Redis.
func needsRedis(cfg *appconfig.Config) bool {
	return cfg.SessionBackend == "redis" || cfg.ClientConfigBackend == "redis"
}

// needsAWS reports whether any configured backend talks to AWS.
func needsAWS(cfg *appconfig.Config) bool {
	return cfg.SessionBackend == "dynamodb" ||
		cfg.ClientConfigBackend == "s3" ||
		cfg.LLMProvider == "bedrock" ||
		cfg.LLMFallbackProvider == "bedrock"
}

// BuildSessionPersister selects the durable history backend. A nil persister keeps
// history in memory only.
func BuildSessionPersister(cfg *appconfig.Config, redisClient *redis.Client, awsCfg *aws.Config) (session.Persister, error) {
	switch cfg.SessionBackend {
	case "", "memory":
		return nil, nil
	case "file":
		p, err := session.NewFilePersister(cfg.SessionFile)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: session file: %w", err)
		}
		return p, nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: SESSION_BACKEND=redis but redis is unavailable")
		}
		return session.NewRedisPersister(redisClient), nil
	case "dynamodb":
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: SESSION_BACKEND=dynamodb requires aws config")
		}
		return session.NewDynamoPersister(dynamodb.NewFromConfig(*awsCfg), cfg.SessionTable), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}
}

// BuildSessionStore wires the per-sender conversation store.
func BuildSessionStore(cfg *appconfig.Config, persister session.Persister, logger *logging.Logger) *session.Store {
	opts := []session.Option{session.WithSystemPrompt(cfg.SystemPrompt)}
	if persister != nil {
		opts = append(opts, session.WithPersister(persister))
	}
	return session.NewStore(logger, opts...)
}

// BuildClientConfigLoader selects where per-sender custom commands live. A nil loader
// means every sender gets the defaults.
func BuildClientConfigLoader(cfg *appconfig.Config, redisClient *redis.Client, awsCfg *aws.Config) (clientconfig.Loader, error) {
	switch cfg.ClientConfigBackend {
	case "", "none":
		return nil, nil
	case "file":
		return clientconfig.NewFileLoader(cfg.ClientConfigDir), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: CLIENT_CONFIG_BACKEND=redis but redis is unavailable")
		}
		return clientconfig.NewRedisLoader(redisClient), nil
	case "s3":
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: CLIENT_CONFIG_BACKEND=s3 requires aws config")
		}
		if strings.TrimSpace(cfg.ClientConfigBucket) == "" {
			return nil, fmt.Errorf("bootstrap: CLIENT_CONFIG_BUCKET is required for the s3 backend")
		}
		return clientconfig.NewS3Loader(s3.NewFromConfig(*awsCfg), cfg.ClientConfigBucket, cfg.ClientConfigPrefix), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown CLIENT_CONFIG_BACKEND %q", cfg.ClientConfigBackend)
	}
}
