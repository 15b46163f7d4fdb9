package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	logx "rxalert/pkg/logx"
)

type redisSlot struct {
	rdb *redis.Client
	key string
	log logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Slot, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return newRedisSlot(rdb, cfg.Key, log), nil
}

func newRedisSlot(rdb *redis.Client, key string, log logx.Logger) *redisSlot {
	return &redisSlot{rdb: rdb, key: key, log: log}
}

func (s *redisSlot) Load(ctx context.Context) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (s *redisSlot) Save(ctx context.Context, data []byte) error {
	return s.rdb.Set(ctx, s.key, data, 0).Err()
}

func (s *redisSlot) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

func (s *redisSlot) Close() error {
	return s.rdb.Close()
}
