package secondlevel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/cache"
	"github.com/charlesng35/l2cache/internal/monitoring"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
)

// storeAccess serialises payloads and turns store failures into misses.
type storeAccess struct {
	store     cache.Store
	log       *zap.Logger
	lifetimes Lifetimes
}

func (a *storeAccess) failed(op, key string, err error) error {
	a.log.Warn("cache store operation failed",
		zap.String("operation", op),
		zap.String("key", key),
		zap.Error(err),
	)
	monitoring.RecordStoreError(op, err.Error())
	return apperrors.ErrStoreUnavailable.WithInternal(fmt.Errorf("cache: %s %s: %w", op, key, err))
}

// load decodes the value stored under key into dst. The error is non-nil only for store
// failures, which have already been logged and counted.
func (a *storeAccess) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := a.store.Get(ctx, key)
	if err != nil {
		return false, a.failed("get", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// Unreadable payloads are dropped so the next load repopulates them.
		a.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = a.store.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

func (a *storeAccess) exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := a.store.Get(ctx, key)
	if err != nil {
		return false, a.failed("get", key, err)
	}
	return ok, nil
}

func (a *storeAccess) save(ctx context.Context, region, key string, value any) error {
	return a.saveWithTTL(ctx, key, value, a.lifetimes.For(region))
}

func (a *storeAccess) saveWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := a.store.Set(ctx, key, raw, ttl); err != nil {
		return a.failed("set", key, err)
	}
	return nil
}

func (a *storeAccess) remove(ctx context.Context, keys ...string) error {
	if err := a.store.Delete(ctx, keys...); err != nil {
		key := ""
		if len(keys) > 0 {
			key = keys[0]
		}
		return a.failed("delete", key, err)
	}
	return nil
}

func (a *storeAccess) removePrefix(ctx context.Context, prefix string) error {
	if err := a.store.DeletePrefix(ctx, prefix); err != nil {
		return a.failed("delete_prefix", prefix, err)
	}
	return nil
}
