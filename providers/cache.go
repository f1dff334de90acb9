package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"drawbet/logger"
)

const providerKey = "drawbet:provider:%s"

// Cached fronts a Registry with a redis copy of each provider. Concurrent misses for the same code
// share one backing lookup. Redis failures fall through to the backing registry.
type Cached struct {
	rdb   *redis.Client
	next  Registry
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

func NewCached(rdb *redis.Client, next Registry, ttl time.Duration, log *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{rdb: rdb, next: next, ttl: ttl, log: logger.OrNop(log)}
}

func (c *Cached) Lookup(ctx context.Context, code string) (*Info, error) {
	key := fmt.Sprintf(providerKey, strings.ToUpper(code))

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var info Info
		if jsonErr := json.Unmarshal(raw, &info); jsonErr == nil {
			return &info, nil
		}
		c.log.Warn("drop corrupt provider cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("provider cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		info, err := c.next.Lookup(ctx, code)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(info); err == nil {
			if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.log.Warn("provider cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Info), nil
}

// Invalidate drops the cached copy after an administrative change.
func (c *Cached) Invalidate(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(providerKey, strings.ToUpper(code))).Err()
}
