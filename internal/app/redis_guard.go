/**
 * @description
 * This file contains the Redis-backed fast paths for the webhook pipeline:
 * a replay guard that short-circuits already-processed provider events before
 * they hit Postgres, and a distributed rate limiter for the public webhook
 * endpoint. Both degrade to open when Redis is unavailable; the database
 * unique constraint remains the durable de-duplication authority.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var webhookRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisWebhookGuard provides replay detection and rate limiting for webhook
// ingestion on top of Redis.
type RedisWebhookGuard struct {
	client  redis.UniversalClient
	prefix  string
	seenTTL time.Duration
}

func NewRedisWebhookGuard(client redis.UniversalClient, prefix string, seenTTL time.Duration) *RedisWebhookGuard {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "payeazy:webhooks"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if seenTTL <= 0 {
		seenTTL = 24 * time.Hour
	}

	return &RedisWebhookGuard{
		client:  client,
		prefix:  trimmedPrefix,
		seenTTL: seenTTL,
	}
}

// Seen reports whether a provider event id has already completed processing.
// Errors fail open: the durable store still rejects true duplicates.
func (g *RedisWebhookGuard) Seen(ctx context.Context, providerName, providerEventID string) bool {
	if g == nil || g.client == nil || providerEventID == "" {
		return false
	}
	key := fmt.Sprintf("%s:seen:%s:%s", g.prefix, providerName, providerEventID)
	exists, err := g.client.Exists(ctx, key).Result()
	if err != nil {
		log.Printf("level=warn component=webhook_guard op=seen msg=\"redis lookup failed; failing open\" err=%v", err)
		return false
	}
	return exists > 0
}

// MarkSeen records a processed event id. Called only after the durable record
// is written, so a crash in between never suppresses a redelivery.
func (g *RedisWebhookGuard) MarkSeen(ctx context.Context, providerName, providerEventID string) {
	if g == nil || g.client == nil || providerEventID == "" {
		return
	}
	key := fmt.Sprintf("%s:seen:%s:%s", g.prefix, providerName, providerEventID)
	if err := g.client.Set(ctx, key, 1, g.seenTTL).Err(); err != nil {
		log.Printf("level=warn component=webhook_guard op=mark_seen msg=\"redis set failed\" err=%v", err)
	}
}

// ConsumeRateLimit increments the request counter for one scope/subject pair
// within a fixed window. It returns the running count and the seconds until
// the window resets.
func (g *RedisWebhookGuard) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if g == nil || g.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	normalizedScope := strings.TrimSpace(scope)
	normalizedSubject := strings.TrimSpace(subject)
	if normalizedScope == "" || normalizedSubject == "" {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:rate:%s:%s", g.prefix, normalizedScope, normalizedSubject)
	rawResult, err := webhookRateLimitScript.Run(ctx, g.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}

	currentCount, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}

	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(currentCount), 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}

	return int(currentCount), retryAfter, nil
}
