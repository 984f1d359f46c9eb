package ratelimit

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/soundcrate/soundcrate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewTokenBucket),
	fx.Provide(NewLocker),
)

// NewRedisClient returns nil when no redis address is configured.
// Every consumer in this package tolerates a nil client, so redis
// stays optional in development.
func NewRedisClient(cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Named("ratelimit").Info("redis not configured, rate limiting and sweep leases disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	log.Named("ratelimit").Info("redis configured", zap.String("addr", addr))
	return client
}
