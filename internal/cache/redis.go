package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Kinis2025/sebelo/internal/sensor"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second

	defaultKey = "sensor_hub:latest"

	// primedField is set in both hashes by Prime. It cannot collide with a
	// device id, which never starts with a NUL byte.
	primedField = "\x00primed"
)

// offerScript replaces the entry only when the new order key sorts higher.
// KEYS[1] holds order keys, KEYS[2] holds readings, both hashed by device.
// A missing order hash means ordering was lost, so the data hash drops its
// primed mark and the next read rebuilds from the store.
var offerScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[4]) == 0 then
  redis.call('HDEL', KEYS[2], ARGV[4])
end
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur and cur >= ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// NewRedisClient returns a go-redis client and validates the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis addr cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// Redis is a Latest shared through a Redis server.
type Redis struct {
	client   *redis.Client
	orderKey string
	dataKey  string
}

// NewRedis wraps client. key prefixes the two hashes used by the cache.
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = defaultKey
	}
	return &Redis{
		client:   client,
		orderKey: key + ":order",
		dataKey:  key + ":data",
	}
}

// orderKey encodes (observed_at, id) so that byte order matches reading order.
func orderKey(r sensor.Reading) string {
	return fmt.Sprintf("%020d:%020d", uint64(r.ObservedAt.UnixNano()), r.ID)
}

// Offer stores r unless a newer reading is already cached.
func (c *Redis) Offer(ctx context.Context, r sensor.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	keys := []string{c.orderKey, c.dataKey}
	if err := offerScript.Run(ctx, c.client, keys, r.DeviceID, orderKey(r), data, primedField).Err(); err != nil {
		return fmt.Errorf("failed to offer reading: %w", err)
	}
	return nil
}

// Prime merges readings into the cache and marks it primed in one
// transaction.
func (c *Redis) Prime(ctx context.Context, readings []sensor.Reading) error {
	keys := []string{c.orderKey, c.dataKey}
	pipe := c.client.TxPipeline()
	for _, r := range readings {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal reading: %w", err)
		}
		offerScript.Eval(ctx, pipe, keys, r.DeviceID, orderKey(r), data, primedField)
	}
	pipe.HSet(ctx, c.orderKey, primedField, "1")
	pipe.HSet(ctx, c.dataKey, primedField, "1")

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to prime cache: %w", err)
	}
	return nil
}

// All returns every cached reading, or ErrCold when the primed mark is gone.
func (c *Redis) All(ctx context.Context) (map[string]sensor.Reading, error) {
	raw, err := c.client.HGetAll(ctx, c.dataKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	if _, ok := raw[primedField]; !ok {
		return nil, ErrCold
	}
	delete(raw, primedField)

	out := make(map[string]sensor.Reading, len(raw))
	for device, data := range raw {
		var r sensor.Reading
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("failed to decode cached reading for %s: %w", device, err)
		}
		out[device] = r
	}
	return out, nil
}

// Reset drops both hashes along with the primed mark.
func (c *Redis) Reset(ctx context.Context) error {
	if err := c.client.Del(ctx, c.orderKey, c.dataKey).Err(); err != nil {
		return fmt.Errorf("failed to reset cache: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *Redis) Close() error {
	return c.client.Close()
}
