// Package cache keeps transaction query pages in Redis. Every ledger write bumps a generation
// counter; pages are stored under the generation they were read in, so a bump hides them all
// and the TTL clears them out.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/app/logger"
	"backoffice/internal/app/model"
	"github.com/go-redis/redis/v8"
)

const (
	defaultPrefix = "ledger:query"
	defaultTTL    = time.Minute
	noGeneration  = -1
)

type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisOption func(r *Redis)

func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) LoggerComponent() string {
	return "Cache.Redis"
}

func (r *Redis) genKey() string {
	return r.prefix + ":gen"
}

func (r *Redis) generation(ctx context.Context) (int64, error) {
	gen, err := r.client.Get(ctx, r.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *Redis) pageKey(gen int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", r.prefix, gen, key)
}

// Get returns the cached page for key and the generation it was looked up in. A miss is filled by
// passing that generation to Set, so a page read before a write is never stored after it.
// Redis failures are logged and reported as a miss with no usable generation.
func (r *Redis) Get(ctx context.Context, key string) (*model.TransactionPage, int64, bool) {
	l := logger.Get(ctx, r)

	gen, err := r.generation(ctx)
	if err != nil {
		l.Warn().Err(err).Msg("generation read failed")
		return nil, noGeneration, false
	}

	b, err := r.client.Get(ctx, r.pageKey(gen, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.Warn().Err(err).Msg("page read failed")
		}
		return nil, gen, false
	}

	page := &model.TransactionPage{}
	if err := json.Unmarshal(b, page); err != nil {
		l.Warn().Err(err).Msg("page decode failed")
		return nil, gen, false
	}

	return page, gen, true
}

// Set stores page under gen, the generation returned by the missed Get
func (r *Redis) Set(ctx context.Context, gen int64, key string, page *model.TransactionPage) {
	if gen == noGeneration {
		return
	}
	l := logger.Get(ctx, r)

	b, err := json.Marshal(page)
	if err != nil {
		l.Warn().Err(err).Msg("page encode failed")
		return
	}

	if err := r.client.Set(ctx, r.pageKey(gen, key), b, r.ttl).Err(); err != nil {
		l.Warn().Err(err).Msg("page write failed")
	}
}

// Invalidate hides every page cached so far
func (r *Redis) Invalidate(ctx context.Context) {
	if err := r.client.Incr(ctx, r.genKey()).Err(); err != nil {
		l := logger.Get(ctx, r)
		l.Warn().Err(err).Msg("invalidate failed")
	}
}

// Nop cache, used when no Redis is configured
type Nop struct{}

func (Nop) Get(context.Context, string) (*model.TransactionPage, int64, bool) { return nil, 0, false }
func (Nop) Set(context.Context, int64, string, *model.TransactionPage)        {}
func (Nop) Invalidate(context.Context)                                        {}
