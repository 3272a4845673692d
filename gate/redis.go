package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/coursegen/model"
	"github.com/redis/go-redis/v9"
)

// DefaultLeaseTTL bounds how long a crashed holder can keep a category locked.
// A live holder renews its lease every third of the TTL, so a request may run
// longer than this.
const DefaultLeaseTTL = 5 * time.Minute

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key's expiry only if it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisGate is an Admitter shared by every process using the same Redis.
type RedisGate struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// RedisOption configures a RedisGate.
type RedisOption func(*RedisGate)

// WithKeyPrefix sets the key prefix (default "coursegen:gate:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(g *RedisGate) {
		g.prefix = prefix
	}
}

// WithLeaseTTL sets the lease expiry.
func WithLeaseTTL(ttl time.Duration) RedisOption {
	return func(g *RedisGate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithRedisLogger sets the logger.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(g *RedisGate) {
		g.logger = logger
	}
}

// NewRedisGate creates a gate backed by rdb.
func NewRedisGate(rdb redis.UniversalClient, opts ...RedisOption) *RedisGate {
	g := &RedisGate{
		rdb:    rdb,
		prefix: "coursegen:gate:",
		ttl:    DefaultLeaseTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *RedisGate) key(cat model.Category) string {
	return g.prefix + string(cat)
}

// Acquire sets the category key if absent. The ticket ID is the lease token.
// The lease is renewed in the background until the ticket is released.
func (g *RedisGate) Acquire(ctx context.Context, cat model.Category) (*Ticket, error) {
	t := newTicket(cat)
	key := g.key(cat)

	ok, err := g.rdb.SetNX(ctx, key, t.ID, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", cat, err)
	}
	if !ok {
		g.logger.Debug("Admission denied", "category", cat, "backend", "redis")
		return nil, fmt.Errorf("%s: %w", cat, ErrBusy)
	}

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	t.stop = stop
	go keepAlive(renewCtx, max(g.ttl/3, time.Millisecond), func(ctx context.Context) (bool, error) {
		n, err := renewScript.Run(ctx, g.rdb, []string{key}, t.ID, g.ttl.Milliseconds()).Int()
		return n == 1, err
	}, g.logger.With("category", cat))
	return t, nil
}

// keepAlive calls renew every interval until ctx ends or renew reports the
// lease is no longer ours. Renewal errors are logged and retried.
func keepAlive(ctx context.Context, interval time.Duration, renew func(context.Context) (bool, error), logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		held, err := renew(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			logger.Warn("Failed to renew admission lease", "error", err)
		case !held:
			logger.Warn("Admission lease lost")
			return
		}
	}
}

// Release deletes the key if this ticket still owns it.
func (g *RedisGate) Release(ctx context.Context, t *Ticket) error {
	if t == nil || !t.markReleased() {
		return nil
	}
	t.stopRenewal()
	if err := releaseScript.Run(ctx, g.rdb, []string{g.key(t.Category)}, t.ID).Err(); err != nil {
		g.logger.Warn("Failed to release admission", "category", t.Category, "error", err)
		return fmt.Errorf("release %s: %w", t.Category, err)
	}
	return nil
}
