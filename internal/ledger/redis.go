package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/irrbb/whatif-engine/internal/model"
)

const (
	listKey    = "whatif:modifications"
	versionKey = "whatif:version"
)

// CachedLedger wraps a primary Store (PostgreSQL) with a Redis read-through
// cache over the hot path, List. Writes go to the primary and invalidate the
// cache; reads check Redis first, then fall back to the primary.
type CachedLedger struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedLedger creates a cached wrapper around a primary ledger.
func NewCachedLedger(primary Store, rdb *redis.Client, ttl time.Duration) *CachedLedger {
	return &CachedLedger{primary: primary, rdb: rdb, ttl: ttl}
}

func (l *CachedLedger) invalidate(ctx context.Context) {
	l.rdb.Del(ctx, listKey, versionKey)
}

// --- Write-through (write to primary, invalidate cache) ---

func (l *CachedLedger) Add(ctx context.Context, mod *model.Modification) (string, error) {
	id, err := l.primary.Add(ctx, mod)
	if err != nil {
		return "", err
	}
	l.invalidate(ctx)
	return id, nil
}

func (l *CachedLedger) Update(ctx context.Context, id string, patch Patch) error {
	if err := l.primary.Update(ctx, id, patch); err != nil {
		return err
	}
	l.invalidate(ctx)
	return nil
}

func (l *CachedLedger) Remove(ctx context.Context, id string) error {
	if err := l.primary.Remove(ctx, id); err != nil {
		return err
	}
	l.invalidate(ctx)
	return nil
}

func (l *CachedLedger) Clear(ctx context.Context) error {
	if err := l.primary.Clear(ctx); err != nil {
		return err
	}
	l.invalidate(ctx)
	return nil
}

// --- Read-through (check cache first) ---

func (l *CachedLedger) List(ctx context.Context) ([]model.Modification, error) {
	data, err := l.rdb.Get(ctx, listKey).Bytes()
	if err == nil {
		var mods []model.Modification
		if json.Unmarshal(data, &mods) == nil {
			return mods, nil
		}
	}

	mods, err := l.primary.List(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(mods); err == nil {
		l.rdb.Set(ctx, listKey, data, l.ttl)
	}
	return mods, nil
}

func (l *CachedLedger) Version(ctx context.Context) (uint64, error) {
	v, err := l.rdb.Get(ctx, versionKey).Uint64()
	if err == nil {
		return v, nil
	}

	v, err = l.primary.Version(ctx)
	if err != nil {
		return 0, err
	}
	l.rdb.Set(ctx, versionKey, v, l.ttl)
	return v, nil
}

// --- Passthrough (not cached) ---

func (l *CachedLedger) Get(ctx context.Context, id string) (*model.Modification, error) {
	return l.primary.Get(ctx, id)
}

func (l *CachedLedger) CountByKind(ctx context.Context, kind model.Kind) (int, error) {
	return l.primary.CountByKind(ctx, kind)
}
