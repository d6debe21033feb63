package clientconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLoader reads configs stored under client:config:<sender>.
type RedisLoader struct {
	redis *redis.Client
}

func NewRedisLoader(client *redis.Client) *RedisLoader {
	if client == nil {
		panic("clientconfig: redis client cannot be nil")
	}
	return &RedisLoader{redis: client}
}

var _ Loader = (*RedisLoader)(nil)

func (l *RedisLoader) key(sender string) string {
	return fmt.Sprintf("client:config:%s", sender)
}

func (l *RedisLoader) Load(ctx context.Context, sender string) (ClientConfig, error) {
	data, err := l.redis.Get(ctx, l.key(sender)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}
	return Decode(data)
}

// Set stores cfg for sender. Operators use it to seed configs; the bridge never calls it.
func (l *RedisLoader) Set(ctx context.Context, sender string, cfg ClientConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clientconfig: marshal config: %w", err)
	}
	if err := l.redis.Set(ctx, l.key(sender), data, 0).Err(); err != nil {
		return fmt.Errorf("clientconfig: set config: %w", err)
	}
	return nil
}
