package signal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
)

// cooldownKeyPrefix namespaces the dedup keys in a shared Redis.
const cooldownKeyPrefix = "confluence:cooldown:"

// RedisCooldownStore shares the cooldown table across engine instances.
// One key per symbol and type, value is the dispatch time in unix millis.
// Keys expire on their own after the retention window, so the table never
// needs sweeping.
type RedisCooldownStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisCooldownStore connects to Redis and verifies the connection.
// Retention bounds how long a last-signal entry is kept; it should be at
// least the cooldown window.
func NewRedisCooldownStore(ctx context.Context, cfg config.RedisConfig, retention time.Duration) (*RedisCooldownStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &RedisCooldownStore{client: client, retention: retention}, nil
}

func redisCooldownKey(symbol string, t models.SignalType) string {
	return cooldownKeyPrefix + symbol + ":" + string(t)
}

// Last implements CooldownStore.
func (s *RedisCooldownStore) Last(ctx context.Context, symbol string, t models.SignalType) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, redisCooldownKey(symbol, t)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read cooldown entry for %s %s: %w", symbol, t, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// Record implements CooldownStore.
func (s *RedisCooldownStore) Record(ctx context.Context, symbol string, t models.SignalType, at time.Time) error {
	value := strconv.FormatInt(at.UnixMilli(), 10)
	if err := s.client.Set(ctx, redisCooldownKey(symbol, t), value, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to write cooldown entry for %s %s: %w", symbol, t, err)
	}
	return nil
}

// Close implements CooldownStore.
func (s *RedisCooldownStore) Close() error {
	return s.client.Close()
}

var _ CooldownStore = (*RedisCooldownStore)(nil)
