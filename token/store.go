package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable indicates the Redis backend is unreachable or
// misbehaving. Callers must fail closed on security decisions.
var ErrStoreUnavailable = errors.New("token store unavailable")

const defaultPrefix = "goiam"

// invalidateAllScript enumerates the live members of a whitelist set,
// blacklists each with its remaining lifetime plus the grace window, and
// deletes the set. Runs atomically so a concurrent issue cannot slip between
// enumerate and clear. The grace window also pulls in members whose expiry
// already passed but that a leeway-tolerant verifier would still accept.
const invalidateAllScript = `
local now = tonumber(ARGV[1])
local blprefix = ARGV[2]
local grace = tonumber(ARGV[3])
local members = redis.call("ZRANGEBYSCORE", KEYS[1], now - grace, "+inf", "WITHSCORES")
local revoked = 0
for i = 1, #members, 2 do
  local jti = members[i]
  local ttl = tonumber(members[i + 1]) - now + grace
  if ttl > 0 then
    redis.call("SET", blprefix .. jti, "1", "EX", ttl)
    revoked = revoked + 1
  end
end
redis.call("DEL", KEYS[1])
return revoked
`

var invalidateAllLua = redis.NewScript(invalidateAllScript)

// Store tracks outstanding and revoked tokens in Redis. All methods are safe
// for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	grace  time.Duration
}

// NewStore creates a Store on the given client. An empty prefix defaults to
// "goiam". grace must cover the verifier's clock-skew leeway: every blacklist
// entry outlives the token's natural expiry by this much, so a revoked token
// cannot come back to life inside the leeway window after its blacklist key
// would otherwise have lapsed.
func NewStore(client redis.UniversalClient, prefix string, grace time.Duration) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if grace < 0 {
		grace = 0
	}
	return &Store{redis: client, prefix: prefix, grace: grace}
}

func (s *Store) whitelistKey(kind, userID string) string {
	return s.prefix + ":wl:" + kind + ":" + userID
}

func (s *Store) blacklistKey(jti string) string {
	return s.prefix + ":bl:" + jti
}

// Add records an outstanding token for (userID, kind). The entry carries the
// token's own expiry; the key TTL is pushed out to cover it.
func (s *Store) Add(ctx context.Context, kind, userID, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	key := s.whitelistKey(kind, userID)

	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(expiresAt.Unix()), Member: jti})
	// NX seeds the TTL on a fresh key; GT extends it without ever
	// shortening it below a longer-lived sibling token. The key must stay
	// enumerable through the grace window so InvalidateAll can still
	// blacklist a just-expired member.
	pipe.ExpireNX(ctx, key, ttl+s.grace+time.Minute)
	pipe.ExpireGT(ctx, key, ttl+s.grace+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Live returns the jtis of all unexpired tokens recorded for (userID, kind),
// pruning expired members as a side effect.
func (s *Store) Live(ctx context.Context, kind, userID string) ([]string, error) {
	key := s.whitelistKey(kind, userID)
	now := time.Now().Unix()

	// Members inside the grace window are expired but still revocable, so
	// only prune what even InvalidateAll no longer cares about.
	cutoff := now - int64(s.grace/time.Second) - 1
	if err := s.redis.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	members, err := s.redis.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return members, nil
}

// Remove drops a single jti from the whitelist. Removing an absent member is
// not an error.
func (s *Store) Remove(ctx context.Context, kind, userID, jti string) error {
	if err := s.redis.ZRem(ctx, s.whitelistKey(kind, userID), jti).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Blacklist marks a jti revoked. ttl is the token's remaining natural
// lifetime; the entry is held for ttl plus the grace window, so the
// revocation outlives any leeway-tolerant expiry check. A ttl at or below
// the negated grace is a no-op: no verifier accepts the token anymore.
func (s *Store) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	ttl += s.grace
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.blacklistKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Claim atomically blacklists a jti and reports whether this call won the
// write. A jti that is already blacklisted, by an earlier Claim or by any
// other revocation path, returns false. Refresh rotation uses this to pick
// exactly one winner among concurrent presentations of the same token.
func (s *Store) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	ttl += s.grace
	if ttl <= 0 {
		return false, nil
	}
	won, err := s.redis.SetNX(ctx, s.blacklistKey(jti), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return won, nil
}

// IsBlacklisted reports whether a jti has been revoked.
func (s *Store) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// InvalidateAll atomically blacklists every outstanding token for
// (userID, kind) and clears the whitelist. Returns the number of tokens
// revoked.
func (s *Store) InvalidateAll(ctx context.Context, kind, userID string) (int, error) {
	res, err := invalidateAllLua.Run(ctx, s.redis,
		[]string{s.whitelistKey(kind, userID)},
		time.Now().Unix(),
		s.prefix+":bl:",
		int64(s.grace/time.Second),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res, nil
}
