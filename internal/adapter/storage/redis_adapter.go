package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/flash-deal/internal/port"
)

const quantitySuffix = ":qty"

// Returns {status, value}: status 1 decremented, 0 not enough, -1 missing.
var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return {-1, 0}
end

current = tonumber(current)
if current >= quantity then
	return {1, redis.call('DECRBY', key, quantity)}
end

return {0, current}
`)

// Returns 1 when added, 0 when the member already holds an entry.
var addEntryScript = redis.NewScript(`
if redis.call('ZADD', KEYS[1], 'NX', ARGV[2], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// Returns {removed, quantity}.
var removeEntryScript = redis.NewScript(`
local removed = redis.call('ZREM', KEYS[1], ARGV[1])
if removed == 0 then
	return {0, 0}
end

local quantity = redis.call('HGET', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return {1, tonumber(quantity or '0')}
`)

// RedisAdapter keeps counters as plain integers and reservation sets as a
// sorted set scored by expiry in milliseconds, with quantities in a hash
// next to it.
type RedisAdapter struct {
	client *redis.Client
}

var _ port.CacheRepository = (*RedisAdapter)(nil)

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetStock(ctx context.Context, key string, value int64) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *RedisAdapter) GetStock(ctx context.Context, key string) (int64, bool, error) {
	v, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (r *RedisAdapter) DecrementStock(ctx context.Context, key string, amount int64) (int64, bool, bool, error) {
	result, err := decrementStockScript.Run(ctx, r.client, []string{key}, amount).Int64Slice()
	if err != nil {
		return 0, false, false, err
	}
	if len(result) != 2 {
		return 0, false, false, errors.Errorf("unexpected decrement reply %v", result)
	}

	switch result[0] {
	case 1:
		return result[1], true, true, nil
	case 0:
		return result[1], false, true, nil
	default:
		return 0, false, false, nil
	}
}

func (r *RedisAdapter) IncrementStock(ctx context.Context, key string, amount int64) (int64, error) {
	return r.client.IncrBy(ctx, key, amount).Result()
}

func (r *RedisAdapter) AddEntry(ctx context.Context, setKey, memberID string, quantity int64, expiry time.Time) (bool, error) {
	keys := []string{setKey, setKey + quantitySuffix}
	added, err := addEntryScript.Run(ctx, r.client, keys, memberID, expiry.UnixMilli(), quantity).Int64()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func (r *RedisAdapter) RemoveEntry(ctx context.Context, setKey, memberID string) (int64, int64, error) {
	keys := []string{setKey, setKey + quantitySuffix}
	result, err := removeEntryScript.Run(ctx, r.client, keys, memberID).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(result) != 2 {
		return 0, 0, errors.Errorf("unexpected remove reply %v", result)
	}
	return result[0], result[1], nil
}

func (r *RedisAdapter) ListExpired(ctx context.Context, setKey string, now time.Time) ([]string, error) {
	return r.client.ZRangeByScore(ctx, setKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
}

func (r *RedisAdapter) ListEntries(ctx context.Context, setKey string) ([]port.CacheEntry, error) {
	members, err := r.client.ZRangeWithScores(ctx, setKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	quantities, err := r.client.HGetAll(ctx, setKey+quantitySuffix).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]port.CacheEntry, 0, len(members))
	for _, m := range members {
		id, _ := m.Member.(string)
		q, err := strconv.ParseInt(quantities[id], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "quantity for %s", id)
		}
		entries = append(entries, port.CacheEntry{
			MemberID:  id,
			Quantity:  q,
			ExpiresAt: time.UnixMilli(int64(m.Score)).UTC(),
		})
	}
	return entries, nil
}

func (r *RedisAdapter) CountEntries(ctx context.Context, setKey string, now time.Time) (int64, error) {
	return r.client.ZCount(ctx, setKey, strconv.FormatInt(now.UnixMilli(), 10), "+inf").Result()
}

func (r *RedisAdapter) SetTTL(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisAdapter) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
