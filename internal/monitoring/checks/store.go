package checks

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/charlesng35/l2cache/internal/monitoring"
)

const storeProbeKey = "l2:health:probe"

// KeyValueStore is the subset of the cache store a round-trip probe needs.
type KeyValueStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Pinger is implemented by stores that hold a network connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStore pings the store when it supports it, then writes, reads back and removes a probe
// key. A failing store only degrades readiness because every cache read falls back to the
// database.
func CacheStore(store KeyValueStore, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("cache_store", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if store == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "cache store not configured"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout(timeout))
		defer cancel()

		if err := roundTrip(probeCtx, store, start); err != nil {
			result := monitoring.ResultFromError("cache_store", err, time.Since(start))
			result.Status = monitoring.StatusDegraded
			return result
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}

func roundTrip(ctx context.Context, store KeyValueStore, start time.Time) error {
	if pinger, ok := store.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			return err
		}
	}

	payload := []byte(strconv.FormatInt(start.UnixNano(), 10))
	if err := store.Set(ctx, storeProbeKey, payload, time.Minute); err != nil {
		return err
	}
	value, ok, err := store.Get(ctx, storeProbeKey)
	if err != nil {
		return err
	}
	_ = store.Delete(ctx, storeProbeKey)
	if !ok || string(value) != string(payload) {
		return errors.New("probe value not read back")
	}
	return nil
}
