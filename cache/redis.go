package cache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/aegis"
)

// Compile-time interface check.
var _ aegis.GenerationCache = (*Redis)(nil)

// Redis caches check results in Redis so several engine instances share
// them. Invalidation bumps a generation counter that is part of every entry
// key, so stale entries become unreachable at once and age out by TTL.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// RedisOption configures the Redis cache.
type RedisOption func(*Redis)

// WithRedisPrefix sets the key prefix. Defaults to "aegis:".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithRedisTTL sets the entry time-to-live.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithRedisLogger sets the logger used for Redis failures.
func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(r *Redis) { r.logger = l }
}

// NewRedis creates a Redis-backed cache on an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "aegis:",
		ttl:    30 * time.Second,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns a cached check result. Redis failures count as misses.
func (r *Redis) Get(ctx context.Context, req *aegis.CheckRequest) (*aegis.CheckResult, bool) {
	key, ok := r.entryKey(ctx, req)
	if !ok {
		return nil, false
	}
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("aegis cache: redis get failed", slog.String("error", err.Error()))
		return nil, false
	}
	var res aegis.CheckResult
	if err := decMode.Unmarshal(data, &res); err != nil {
		r.logger.Warn("aegis cache: decode failed", slog.String("error", err.Error()))
		return nil, false
	}
	return &res, true
}

// Set stores a check result under the current generation.
func (r *Redis) Set(ctx context.Context, req *aegis.CheckRequest, result *aegis.CheckResult) {
	gen, ok := r.Generation(ctx, req.UserID)
	if !ok {
		return
	}
	r.SetAt(ctx, gen, req, result)
}

// SetAt stores a check result under gen. If either generation moved since
// gen was read, the entry is written under a key no Get will build.
func (r *Redis) SetAt(ctx context.Context, gen string, req *aegis.CheckRequest, result *aegis.CheckResult) {
	if r.ttl <= 0 {
		return
	}
	digest, ok := requestKey(req)
	if !ok {
		return
	}
	key := r.prefix + "r:" + gen + ":" + digest
	data, err := encMode.Marshal(result)
	if err != nil {
		r.logger.Warn("aegis cache: encode failed", slog.String("error", err.Error()))
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("aegis cache: redis set failed", slog.String("error", err.Error()))
	}
}

// InvalidateUser makes every cached result for a user unreachable.
func (r *Redis) InvalidateUser(ctx context.Context, userID string) {
	if err := r.client.Incr(ctx, r.userGenKey(userID)).Err(); err != nil {
		r.logger.Warn("aegis cache: invalidate user failed",
			slog.String("user", userID),
			slog.String("error", err.Error()),
		)
	}
}

// InvalidateAll makes every cached result unreachable.
func (r *Redis) InvalidateAll(ctx context.Context) {
	if err := r.client.Incr(ctx, r.prefix+"gen").Err(); err != nil {
		r.logger.Warn("aegis cache: invalidate all failed", slog.String("error", err.Error()))
	}
}

func (r *Redis) userGenKey(userID string) string {
	return r.prefix + "gen:u:" + userID
}

// Generation returns the global and user generations joined as one token.
func (r *Redis) Generation(ctx context.Context, userID string) (string, bool) {
	gens, err := r.client.MGet(ctx, r.prefix+"gen", r.userGenKey(userID)).Result()
	if err != nil {
		r.logger.Warn("aegis cache: redis generation lookup failed", slog.String("error", err.Error()))
		return "", false
	}
	return generation(gens[0]) + ":" + generation(gens[1]), true
}

// entryKey builds the entry key from the current generations and the
// request digest.
func (r *Redis) entryKey(ctx context.Context, req *aegis.CheckRequest) (string, bool) {
	digest, ok := requestKey(req)
	if !ok {
		return "", false
	}
	gen, ok := r.Generation(ctx, req.UserID)
	if !ok {
		return "", false
	}
	return r.prefix + "r:" + gen + ":" + digest, true
}

func generation(v any) string {
	switch g := v.(type) {
	case string:
		return g
	case int64:
		return strconv.FormatInt(g, 10)
	default:
		return "0"
	}
}
