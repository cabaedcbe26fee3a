package featurecache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the production Cache implementation, backed by a
// single shared *redis.Client (constructed once at app startup and
// passed by handle into every component, per SPEC_FULL.md's
// shared-handle design note).
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps an already-connected redis client.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) ReplaceUserTopK(ctx context.Context, userID string, items []Scored) error {
	return c.replaceSortedSet(ctx, userTopKKey(userID), items, topKTTL)
}

func (c *RedisCache) ReplaceGlobalTopK(ctx context.Context, items []Scored) error {
	return c.replaceSortedSet(ctx, globalTopKKey, items, 0)
}

// replaceSortedSet deletes and rewrites a sorted set inside a single
// pipelined transaction so readers observe either the old or the new
// set, never a partial one.
func (c *RedisCache) replaceSortedSet(ctx context.Context, key string, items []Scored, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(items) > 0 {
			members := make([]redis.Z, 0, len(items))
			for _, it := range items {
				members = append(members, redis.Z{Score: it.Score, Member: it.ID})
			}
			pipe.ZAdd(ctx, key, members...)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("featurecache: replace sorted set %q: %w", key, err)
	}
	return nil
}

func (c *RedisCache) UserTopK(ctx context.Context, userID string, limit int) ([]Scored, error) {
	return c.topK(ctx, userTopKKey(userID), limit)
}

func (c *RedisCache) GlobalTopK(ctx context.Context, limit int) ([]Scored, error) {
	return c.topK(ctx, globalTopKKey, limit)
}

func (c *RedisCache) topK(ctx context.Context, key string, limit int) ([]Scored, error) {
	zs, err := c.rdb.ZRevRangeWithScores(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("featurecache: top-k %q: %w", key, err)
	}
	out := make([]Scored, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, Scored{ID: id, Score: z.Score})
	}
	return out, nil
}

func (c *RedisCache) PutProductMeta(ctx context.Context, productID string, meta []byte) error {
	if err := c.rdb.HSet(ctx, productMetaKey, productID, meta).Err(); err != nil {
		return fmt.Errorf("featurecache: put product meta: %w", err)
	}
	return nil
}

func (c *RedisCache) GetProductMetas(ctx context.Context, productIDs []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	vals, err := c.rdb.HMGet(ctx, productMetaKey, productIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("featurecache: get product metas: %w", err)
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[productIDs[i]] = []byte(s)
	}
	return out, nil
}

func (c *RedisCache) MerchantPosterior(ctx context.Context, merchantID string) (Posterior, error) {
	return c.posterior(ctx, merchantKey(merchantID))
}

func (c *RedisCache) CategoryPosterior(ctx context.Context, categoryID string) (Posterior, error) {
	return c.posterior(ctx, categoryKey(categoryID))
}

func (c *RedisCache) posterior(ctx context.Context, key string) (Posterior, error) {
	vals, err := c.rdb.HMGet(ctx, key, "a", "b").Result()
	if err != nil {
		return Posterior{}, fmt.Errorf("featurecache: posterior %q: %w", key, err)
	}
	p := Posterior{A: 1, B: 1}
	if a, ok := vals[0].(string); ok {
		fmt.Sscanf(a, "%d", &p.A)
	}
	if b, ok := vals[1].(string); ok {
		fmt.Sscanf(b, "%d", &p.B)
	}
	if p.A < 1 {
		p.A = 1
	}
	if p.B < 1 {
		p.B = 1
	}
	return p, nil
}

func (c *RedisCache) IncrementMerchantPosterior(ctx context.Context, merchantID string, success bool) error {
	return c.incrementPosterior(ctx, merchantKey(merchantID), success)
}

func (c *RedisCache) IncrementCategoryPosterior(ctx context.Context, categoryID string, success bool) error {
	return c.incrementPosterior(ctx, categoryKey(categoryID), success)
}

func (c *RedisCache) incrementPosterior(ctx context.Context, key string, success bool) error {
	field := "b"
	if success {
		field = "a"
	}
	if err := c.rdb.HIncrBy(ctx, key, field, 1).Err(); err != nil {
		return fmt.Errorf("featurecache: increment posterior %q: %w", key, err)
	}
	// Seed the companion field to 1 if this is a brand-new key so later
	// reads never see a zero-valued (invalid) posterior half.
	c.rdb.HSetNX(ctx, key, oppositeField(field), 1)
	return nil
}

func oppositeField(field string) string {
	if field == "a" {
		return "b"
	}
	return "a"
}

func (c *RedisCache) PushSessionRecent(ctx context.Context, sessionID, productID string) error {
	key := sessionKey(sessionID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// Avoid a duplicate consecutive push: peek the current head.
		head, herr := c.rdb.LIndex(ctx, key, 0).Result()
		if herr == nil && head == productID {
			pipe.Expire(ctx, key, sessionTTL)
			return nil
		}
		pipe.LPush(ctx, key, productID)
		pipe.LTrim(ctx, key, 0, sessionCap-1)
		pipe.Expire(ctx, key, sessionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("featurecache: push session recent: %w", err)
	}
	return nil
}

func (c *RedisCache) SessionRecent(ctx context.Context, sessionID string, limit int) ([]string, error) {
	ids, err := c.rdb.LRange(ctx, sessionKey(sessionID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("featurecache: session recent: %w", err)
	}
	return ids, nil
}

func (c *RedisCache) FlushSession(ctx context.Context, sessionID string) error {
	if err := c.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("featurecache: flush session: %w", err)
	}
	return nil
}

func (c *RedisCache) PushEvent(ctx context.Context, payload []byte) error {
	if err := c.rdb.LPush(ctx, eventsQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("featurecache: push event: %w", err)
	}
	return nil
}

func (c *RedisCache) PopEvent(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	res, err := c.rdb.BRPop(ctx, timeout, eventsQueueKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("featurecache: pop event: %w", err)
	}
	// BRPop returns [key, value].
	if len(res) < 2 {
		return nil, false, nil
	}
	return []byte(res[1]), true, nil
}
