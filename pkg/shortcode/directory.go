package shortcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/waitroomhq/waitroom/pkg/models"
	"github.com/waitroomhq/waitroom/pkg/store"
)

// QueueLookup is the slice of the store the directory needs.
type QueueLookup interface {
	GetQueueByCode(ctx context.Context, shortCode string) (*models.Queue, error)
}

// Directory resolves short codes to session ids. Redis is consulted first
// and refreshed on miss; when redis is absent or failing, every lookup
// falls through to the durable store. Stale cache entries are tolerated —
// the store is authoritative.
type Directory struct {
	rdb    *redis.Client
	lookup QueueLookup
	ttl    time.Duration
	logger *slog.Logger
}

// ErrUnknownCode is returned when a code maps to no queue.
var ErrUnknownCode = errors.New("unknown queue code")

// NewDirectory creates the directory. rdb may be nil (cache disabled).
func NewDirectory(rdb *redis.Client, lookup QueueLookup, ttl time.Duration) *Directory {
	return &Directory{
		rdb:    rdb,
		lookup: lookup,
		ttl:    ttl,
		logger: slog.With("component", "directory"),
	}
}

func cacheKey(code string) string {
	return "waitroom:code:" + code
}

// Resolve maps a canonicalized code to its session id.
func (d *Directory) Resolve(ctx context.Context, code string) (string, error) {
	if !Valid(code) {
		return "", ErrUnknownCode
	}

	if d.rdb != nil {
		sessionID, err := d.rdb.Get(ctx, cacheKey(code)).Result()
		if err == nil && sessionID != "" {
			return sessionID, nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			d.logger.Warn("Redis lookup failed, falling back to store", "code", code, "error", err)
		}
	}

	q, err := d.lookup.GetQueueByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrUnknownCode
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve code: %w", err)
	}

	d.Put(ctx, code, q.SessionID)
	return q.SessionID, nil
}

// Put writes the mapping through to the cache with a TTL refresh. Cache
// failures are logged, never returned.
func (d *Directory) Put(ctx context.Context, code, sessionID string) {
	if d.rdb == nil {
		return
	}
	if err := d.rdb.Set(ctx, cacheKey(code), sessionID, d.ttl).Err(); err != nil {
		d.logger.Warn("Redis write-through failed", "code", code, "error", err)
	}
}

// Invalidate drops the mapping, used when a queue closes.
func (d *Directory) Invalidate(ctx context.Context, code string) {
	if d.rdb == nil {
		return
	}
	if err := d.rdb.Del(ctx, cacheKey(code)).Err(); err != nil {
		d.logger.Warn("Redis invalidate failed", "code", code, "error", err)
	}
}
