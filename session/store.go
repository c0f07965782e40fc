package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load when the session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrReservedKey is returned when a session attribute collides with store metadata.
var ErrReservedKey = errors.New("session attribute key is reserved")

// Store persists session attributes keyed by opaque session id.
type Store interface {
	Load(ctx context.Context, id string) (map[string]string, error)
	Save(ctx context.Context, id string, values map[string]string) error
	Delete(ctx context.Context, id string) error
}

const (
	minSlidingTTL = time.Second
	createdField  = "_meta:created"
	reservedPfx   = "_meta:"
)

// saveSessionScript replaces the attribute hash while keeping the original
// creation time, then applies the idle TTL capped by the absolute lifetime.
const saveSessionScript = `
local created = redis.call("HGET", KEYS[1], ARGV[1])
if not created then
  created = ARGV[2]
end
local ttl = tonumber(ARGV[3])
local absolute = tonumber(ARGV[4])
local now = tonumber(ARGV[2])
if absolute > 0 then
  local remaining = tonumber(created) + absolute - now
  if remaining <= 0 then
    redis.call("DEL", KEYS[1])
    return 0
  end
  if remaining < ttl then
    ttl = remaining
  end
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], ARGV[1], created)
for i = 5, #ARGV, 2 do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call("PEXPIRE", KEYS[1], ttl)
return 1
`

var saveSessionLua = redis.NewScript(saveSessionScript)

// RedisConfig controls RedisStore expiration.
type RedisConfig struct {
	Prefix            string
	IdleTTL           time.Duration
	AbsoluteLifetime  time.Duration
	SlidingExpiration bool
	JitterEnabled     bool
	JitterRange       time.Duration
}

// RedisStore keeps each session as a Redis hash under prefix:id.
type RedisStore struct {
	redis            redis.UniversalClient
	prefix           string
	idleTTL          time.Duration
	absoluteLifetime time.Duration
	sliding          bool
	jitterEnabled    bool
	jitterRange      time.Duration
	now              func() time.Time
}

// NewRedisStore creates a [RedisStore]. A zero IdleTTL defaults to 20 minutes.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "bs"
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 20 * time.Minute
	}
	return &RedisStore{
		redis:            client,
		prefix:           cfg.Prefix,
		idleTTL:          cfg.IdleTTL,
		absoluteLifetime: cfg.AbsoluteLifetime,
		sliding:          cfg.SlidingExpiration,
		jitterEnabled:    cfg.JitterEnabled,
		jitterRange:      cfg.JitterRange,
		now:              time.Now,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

// Load returns the attributes of id. Missing or expired sessions return
// [ErrNotFound]; with sliding expiration the TTL is renewed.
func (s *RedisStore) Load(ctx context.Context, id string) (map[string]string, error) {
	key := s.key(id)

	fields, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	now := s.now()
	remaining := s.remainingAbsoluteTTL(fields[createdField], now)
	if remaining <= 0 {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, ErrNotFound
	}

	if s.sliding {
		nextTTL, err := s.nextSlidingTTL(remaining)
		if err != nil {
			return nil, err
		}
		if err := s.redis.PExpire(ctx, key, nextTTL).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	values := make(map[string]string, len(fields))
	for k, v := range fields {
		if strings.HasPrefix(k, reservedPfx) {
			continue
		}
		values[k] = v
	}
	return values, nil
}

// Save replaces the attributes of id and resets its idle TTL.
//
//	Performance: 1 Redis round-trip (Lua script).
func (s *RedisStore) Save(ctx context.Context, id string, values map[string]string) error {
	args := make([]any, 0, 4+len(values)*2)
	args = append(args,
		createdField,
		strconv.FormatInt(s.now().UnixMilli(), 10),
		s.idleTTL.Milliseconds(),
		s.absoluteLifetime.Milliseconds(),
	)
	for k, v := range values {
		if strings.HasPrefix(k, reservedPfx) {
			return fmt.Errorf("%w: %q", ErrReservedKey, k)
		}
		args = append(args, k, v)
	}

	if err := saveSessionLua.Run(ctx, s.redis, []string{s.key(id)}, args...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes id. Deleting a missing session is not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping measures a round-trip to Redis.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *RedisStore) remainingAbsoluteTTL(created string, now time.Time) time.Duration {
	if s.absoluteLifetime <= 0 {
		return s.idleTTL
	}
	ms, err := strconv.ParseInt(created, 10, 64)
	if err != nil {
		// Without a creation time the cap cannot be enforced; treat as expired.
		return 0
	}
	remaining := time.UnixMilli(ms).Add(s.absoluteLifetime).Sub(now)
	if remaining > s.idleTTL {
		return s.idleTTL
	}
	return remaining
}

func (s *RedisStore) nextSlidingTTL(remaining time.Duration) (time.Duration, error) {
	nextTTL := remaining

	if s.jitterEnabled && s.jitterRange > 0 {
		jitter, err := randomJitter(s.jitterRange)
		if err != nil {
			return 0, err
		}
		nextTTL += jitter
	}

	if nextTTL > remaining {
		nextTTL = remaining
	}

	minTTL := minSlidingTTL
	if remaining < minTTL {
		minTTL = remaining
	}
	if nextTTL < minTTL {
		nextTTL = minTTL
	}

	return nextTTL, nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}

	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	span := max*2 + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}

	return time.Duration(n.Int64() - max), nil
}
