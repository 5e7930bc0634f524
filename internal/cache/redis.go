package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gustycube/uplinks/internal/logging"
)

const redisPrefix = "uplinks:"

// Redis shares lookups between runs and between API replicas
type Redis struct {
	cli        *redis.Client
	ttl        time.Duration
	log        *logging.Logger
	errorCount atomic.Int64
}

func NewRedis(addr string, ttl time.Duration, log *logging.Logger) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Redis{cli: cli, ttl: ttl, log: log}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	b, err := r.cli.Get(ctx, redisPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.failed("get", err)
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(ctx context.Context, key string, val []byte) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.cli.Set(ctx, redisPrefix+key, val, r.ttl).Err(); err != nil {
		r.failed("set", err)
	}
}

// Ping checks connectivity, used by the health endpoint
func (r *Redis) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.cli.Close()
}

func (r *Redis) failed(op string, err error) {
	n := r.errorCount.Add(1)
	if n%100 == 1 { // Log every 100th error to avoid spam
		r.log.Warnw("redis cache error", "op", op, "count", n, "err", err)
	}
}
