package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	client *redis.Client
}

// New creates a new Redis client
func New(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis ping failed: %w", err)
	}

	return &Client{client: client}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// IncrWindow counts one hit against a fixed window stored under key.
// The window starts with the first hit: the key gets its TTL when the
// counter is created and disappears when the window elapses. It returns the
// count including this hit and the time left until the window resets.
func (c *Client) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrWindowScript.Run(ctx, c.client, []string{WindowKey(key)}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit script: %w", err)
	}
	return parseWindowReply(res)
}

// parseWindowReply decodes the {count, ttl_ms} reply of incrWindowScript.
func parseWindowReply(res []interface{}) (int64, time.Duration, error) {
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	count, ok := res[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("rate limit script: count is %T, want int64", res[0])
	}
	ttlMs, ok := res[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("rate limit script: ttl is %T, want int64", res[1])
	}
	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

// incrWindowScript increments the counter and sets the expiry only when the
// counter is created, so later hits do not extend the window. A key that
// somehow lost its TTL gets one again.
var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// WindowKey namespaces a rate-limit key.
func WindowKey(key string) string {
	return "ratelimit:" + key
}
