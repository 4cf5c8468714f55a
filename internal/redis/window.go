package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"payment-simulator/internal/ratelimit"
)

const keyPrefix = "ratelimit:"

// slidingWindowScript trims the window, admits the request when below the
// limit and reports {allowed, count, oldestMs}. Running it as one script
// keeps check-and-record atomic across instances.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)

local allowed = 0
if count < limit then
  redis.call("ZADD", key, now, member)
  count = count + 1
  allowed = 1
end

local oldest = now
local first = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if first[2] ~= nil then
  oldest = tonumber(first[2])
end

redis.call("PEXPIRE", key, window)
return {allowed, count, oldest}
`

// WindowStore is a ratelimit.Store shared by every instance pointing at the
// same Redis.
type WindowStore struct {
	Client *redis.Client
	script *redis.Script
}

func NewWindowStore(client *redis.Client) *WindowStore {
	return &WindowStore{Client: client, script: redis.NewScript(slidingWindowScript)}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*WindowStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewWindowStore(client), nil
}

func (s *WindowStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (ratelimit.Usage, error) {
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	res, err := s.script.Run(ctx, s.Client, []string{keyPrefix + key},
		nowMs, window.Milliseconds(), limit, member).Slice()
	if err != nil {
		return ratelimit.Usage{}, fmt.Errorf("sliding window script: %w", err)
	}
	if len(res) != 3 {
		return ratelimit.Usage{}, errors.New("sliding window script: unexpected reply")
	}

	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	oldest, _ := res[2].(int64)

	return ratelimit.Usage{
		Allowed: allowed == 1,
		Count:   int(count),
		Oldest:  time.UnixMilli(oldest),
	}, nil
}

func (s *WindowStore) Close() error {
	return s.Client.Close()
}
