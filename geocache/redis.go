package geocache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces coordinate keys.
const DefaultRedisPrefix = "vitrine:geo:"

// RedisStore keeps coordinates in Redis with an expiry, so several
// processes share geocoding results. Redis errors degrade to misses.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore wraps an existing client. The caller owns the client.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultDataTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (s *RedisStore) Lookup(ctx context.Context, key string) (Coordinates, bool) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Coordinates{}, false
	}
	if err != nil {
		s.logger.Error("geocache: redis get", "key", key, "error", err)
		return Coordinates{}, false
	}
	var c Coordinates
	if err := json.Unmarshal(data, &c); err != nil {
		s.logger.Warn("geocache: corrupt redis entry, deleting", "key", key, "error", err)
		s.client.Del(ctx, s.prefix+key)
		return Coordinates{}, false
	}
	return c, true
}

func (s *RedisStore) Store(ctx context.Context, key string, c Coordinates) {
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		s.logger.Error("geocache: redis set", "key", key, "error", err)
	}
}
