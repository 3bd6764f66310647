package roadinfo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/potholeops/backend/internal/cache"
)

// CachedProvider memoizes provider answers by query. Cache faults fall
// through to the wrapped provider.
type CachedProvider struct {
	Next   Provider
	Cache  cache.Cache
	TTL    time.Duration
	Logger zerolog.Logger
}

func (c *CachedProvider) Ways(ctx context.Context, q Query) ([]Way, error) {
	key := q.Key()
	if raw, err := c.Cache.Get(ctx, key); err == nil {
		var ways []Way
		if err := json.Unmarshal(raw, &ways); err == nil {
			return ways, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		c.Logger.Warn().Err(err).Str("key", key).Msg("road cache read failed")
	}

	ways, err := c.Next.Ways(ctx, q)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(ways); err == nil {
		if err := c.Cache.Set(ctx, key, raw, c.TTL); err != nil {
			c.Logger.Warn().Err(err).Str("key", key).Msg("road cache write failed")
		}
	}
	return ways, nil
}
