package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ragqa/internal/domain"
)

// Redis shares cached results between service replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedis parses a redis:// URL and pings the server.
func NewRedis(ctx context.Context, url string, ttl time.Duration, log *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisWithClient(client, ttl, log), nil
}

func NewRedisWithClient(client *redis.Client, ttl time.Duration, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, log: log}
}

func (r *Redis) Get(ctx context.Context, key string) (domain.RetrievalResult, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return domain.RetrievalResult{}, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		r.log.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return domain.RetrievalResult{}, false
	}
	if !e.valid() {
		r.log.Warn("cache entry corrupt", zap.String("key", key),
			zap.Int("passages", len(e.Passages)), zap.Int("texts", len(e.Texts)),
			zap.Int("ids", len(e.IDs)), zap.Int("scores", len(e.Scores)))
		return domain.RetrievalResult{}, false
	}
	return e.result(), true
}

func (r *Redis) Set(ctx context.Context, key string, res domain.RetrievalResult) {
	data, err := json.Marshal(toEntry(res))
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }
