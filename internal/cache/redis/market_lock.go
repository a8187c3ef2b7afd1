package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// releaseLua deletes the lock key only if it still holds the caller's token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua refreshes the TTL only if the key still holds the caller's token.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// MarketLock makes sure only one quoter runs against a market at a time.
// Two processes cancelling each other's orders on every snapshot would never
// keep a quote resting.
type MarketLock struct {
	rdb       *redis.Client
	releaseSc *redis.Script
	extendSc  *redis.Script
	logger    *slog.Logger
}

// NewMarketLock creates a MarketLock backed by the given Client.
func NewMarketLock(c *Client, logger *slog.Logger) *MarketLock {
	return &MarketLock{
		rdb:       c.rdb,
		releaseSc: redis.NewScript(releaseLua),
		extendSc:  redis.NewScript(extendLua),
		logger:    logger.With(slog.String("component", "market_lock")),
	}
}

func lockKey(marketID string) string {
	return "lock:quoter:" + marketID
}

// Lease is a held market lock.
type Lease struct {
	release func()
	lost    chan struct{}
}

// Release stops the keep-alive and deletes the key if still owned. It is
// safe to call more than once.
func (l *Lease) Release() { l.release() }

// Lost is closed when the key was taken over or expired while held.
func (l *Lease) Lost() <-chan struct{} { return l.lost }

// Hold acquires the lock for marketID and extends it every ttl/3 until the
// lease is released or ctx ends. It returns domain.ErrLockHeld when another
// owner holds the lock.
func (l *MarketLock) Hold(ctx context.Context, marketID string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	key := lockKey(marketID)

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", marketID, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", marketID, domain.ErrLockHeld)
	}

	holdCtx, cancel := context.WithCancel(ctx)
	lease := &Lease{lost: make(chan struct{})}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if !l.keepAlive(holdCtx, key, token, ttl) {
			close(lease.lost)
		}
	}()

	var once sync.Once
	lease.release = func() {
		once.Do(func() {
			cancel()
			<-done
			releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelRelease()
			if err := l.releaseSc.Run(releaseCtx, l.rdb, []string{key}, token).Err(); err != nil {
				l.logger.Warn("lock release failed",
					slog.String("market", marketID),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	return lease, nil
}

// keepAlive returns false when the lock was lost, true when ctx ended.
func (l *MarketLock) keepAlive(ctx context.Context, key, token string, ttl time.Duration) bool {
	ticker := time.NewTicker(max(ttl/3, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
			n, err := l.extendSc.Run(ctx, l.rdb, []string{key}, token, ttl.Milliseconds()).Int64()
			if err != nil {
				if ctx.Err() == nil {
					l.logger.Warn("lock extend failed", slog.String("key", key), slog.String("error", err.Error()))
				}
				continue
			}
			if n == 0 {
				l.logger.Error("lock lost", slog.String("key", key))
				return false
			}
		}
	}
}
