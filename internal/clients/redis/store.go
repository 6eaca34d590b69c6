package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/marlowe/storefront-backend/internal/platform/logger"
)

// Store is the storefront's only local persistence: the durable channel of
// the cart identity, the calculated-rate cache, and the tag sets used to
// invalidate dependent entries after a mutation.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	// SetNX writes only when the key is absent; a prefetched rate must
	// never overwrite an explicitly applied one.
	SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	// Tag records keys under a tag set so InvalidateTag can drop them all.
	Tag(ctx context.Context, tag string, keys ...string) error
	InvalidateTag(ctx context.Context, tag string) error
	Close() error
}

type store struct {
	log *logger.Logger
	rdb *goredis.Client
}

func New(log *logger.Logger) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &store{
		log: log.With("client", "RedisStore"),
		rdb: rdb,
	}, nil
}

func (s *store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *store) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, val, ttl).Err()
}

func (s *store) SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, val, ttl).Result()
}

func (s *store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *store) Tag(ctx context.Context, tag string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		members = append(members, k)
	}
	if err := s.rdb.SAdd(ctx, tag, members...).Err(); err != nil {
		return err
	}
	// Tag sets expire with their members so orphaned tags do not pile up.
	return s.rdb.Expire(ctx, tag, 24*time.Hour).Err()
}

func (s *store) InvalidateTag(ctx context.Context, tag string) error {
	keys, err := s.rdb.SMembers(ctx, tag).Result()
	if err != nil && err != goredis.Nil {
		return err
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return s.rdb.Del(ctx, tag).Err()
}

func (s *store) Close() error {
	return s.rdb.Close()
}
