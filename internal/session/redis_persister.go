package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const redisKeyPrefix = "session:"

// RedisPersister stores one JSON history per key. Keys never expire.
type RedisPersister struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisPersister(client *redis.Client) *RedisPersister {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisPersister{
		redis:  client,
		tracer: otel.Tracer("replybridge.internal.session.redis"),
	}
}

var _ Persister = (*RedisPersister)(nil)

func sessionKey(sender string) string {
	return redisKeyPrefix + sender
}

func (p *RedisPersister) Load(ctx context.Context, sender string) (History, bool, error) {
	ctx, span := p.tracer.Start(ctx, "session.redis.load")
	defer span.End()

	data, err := p.redis.Get(ctx, sessionKey(sender)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("session: failed to load history: %w", err)
	}
	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("session: failed to decode history: %w", err)
	}
	return history, true, nil
}

func (p *RedisPersister) Save(ctx context.Context, sender string, history History) error {
	ctx, span := p.tracer.Start(ctx, "session.redis.save")
	defer span.End()

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal history: %w", err)
	}
	if err := p.redis.Set(ctx, sessionKey(sender), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist history: %w", err)
	}
	return nil
}

func (p *RedisPersister) Delete(ctx context.Context, sender string) error {
	if err := p.redis.Del(ctx, sessionKey(sender)).Err(); err != nil {
		return fmt.Errorf("session: failed to delete history: %w", err)
	}
	return nil
}

func (p *RedisPersister) DeleteAll(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "session.redis.delete_all")
	defer span.End()

	iter := p.redis.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := p.redis.Del(ctx, batch...).Err(); err != nil {
				span.RecordError(err)
				return fmt.Errorf("session: failed to delete histories: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to scan histories: %w", err)
	}
	if len(batch) > 0 {
		if err := p.redis.Del(ctx, batch...).Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("session: failed to delete histories: %w", err)
		}
	}
	return nil
}
