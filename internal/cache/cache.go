// Package cache adapts a Redis connection into two query-execution
// concerns: a TTL'd cache of plan describe trails keyed by query text +
// planner options, and a sliding-window rate limiter applied per principal.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/knesgoda/opql-toolkit/internal/planner"
)

// Client wraps go-redis with the plan-cache and rate-limit operations the
// query-execution path needs.
type Client struct {
	client *redis.Client
}

// New creates a Client from a redis:// URL, e.g. "redis://localhost:6379"
// or "redis://:password@host:6379/0".
func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return &Client{client: client}, nil
}

// Ping checks that the Redis connection is alive, for health endpoints.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// PlanKey builds a workspace-scoped cache key for a query plus planner
// options. Format: "opql:plan:{workspaceID}:{sha256(text+options)}".
func PlanKey(workspaceID, queryText string, opts planner.PlannerOptions) (string, error) {
	optsJSON, err := json.Marshal(planOptionsCacheKey{
		RootAlias:     opts.RootAlias,
		AliasSources:  opts.AliasSources,
		GraphDepthCap: opts.GraphDepthCap,
		Cursor:        opts.Cursor,
	})
	if err != nil {
		return "", fmt.Errorf("cache: marshal plan options: %w", err)
	}
	sum := sha256.Sum256(append([]byte(queryText), optsJSON...))
	return strings.Join([]string{"opql", "plan", workspaceID, hex.EncodeToString(sum[:])}, ":"), nil
}

// planOptionsCacheKey is the subset of PlannerOptions that changes which
// plan would be built; StableOrder is intentionally excluded since it is
// derived, not user input, and would otherwise churn the key needlessly.
type planOptionsCacheKey struct {
	RootAlias     string
	AliasSources  map[string]string
	GraphDepthCap int
	Cursor        *string
}

// CachedDescribe is the serializable shape stored per plan-cache entry: the
// plan's stage descriptions, useful for EXPLAIN without re-parsing.
type CachedDescribe struct {
	Describe []string
}

// GetPlanDescribe reads a cached plan's describe trail. ok is false both on
// cache miss and on any deserialization problem.
func (c *Client) GetPlanDescribe(ctx context.Context, key string) (CachedDescribe, bool) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return CachedDescribe{}, false
	}
	var out CachedDescribe
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return CachedDescribe{}, false
	}
	return out, true
}

// SetPlanDescribe stores a plan's describe trail for ttl.
func (c *Client) SetPlanDescribe(ctx context.Context, key string, describe []string, ttl time.Duration) error {
	raw, err := json.Marshal(CachedDescribe{Describe: describe})
	if err != nil {
		return fmt.Errorf("cache: marshal plan describe: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// RateLimitKey builds a principal-scoped rate-limit key.
// Format: "opql:ratelimit:{workspaceID}:{userID}".
func RateLimitKey(workspaceID, userID string) string {
	return strings.Join([]string{"opql", "ratelimit", workspaceID, userID}, ":")
}

// rateLimitScript implements a sliding-window limiter using a Redis sorted
// set: expire old entries, count what remains, admit if under limit.
var rateLimitScript = redis.NewScript(`
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, ttl)
		return 1
	else
		redis.call('PEXPIRE', key, ttl)
		return 0
	end
`)

// CheckRateLimit reports whether a query execution for key is allowed under
// a sliding window of limit executions per window. member disambiguates
// concurrent calls within the same millisecond without relying on
// time.Now()/math.Random() inside the Lua script.
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration, member string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window)

	result, err := rateLimitScript.Run(ctx, c.client, []string{key},
		float64(windowStart.UnixMilli()),
		float64(now.UnixMilli()),
		limit,
		window.Milliseconds(),
		member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("cache: rate limit check: %w", err)
	}
	return result == 1, nil
}
