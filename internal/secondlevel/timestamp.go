package secondlevel

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/monitoring"
)

type timestampValue struct {
	Region string `json:"region"`
	Value  int64  `json:"value"`
}

// TimestampRegion records, per cache region, the logical time of the last invalidating write.
// Values are persisted in the shared store and mirrored in process; the mirror acts as a floor
// so a store outage never moves a value backwards.
type TimestampRegion struct {
	access *storeAccess
	log    *zap.Logger

	mu    sync.Mutex
	floor map[string]int64
}

func newTimestampRegion(access *storeAccess, log *zap.Logger) *TimestampRegion {
	return &TimestampRegion{
		access: access,
		log:    log,
		floor:  make(map[string]int64),
	}
}

// Touch advances region's last-invalidation time to now. A now older than the recorded value is
// rejected and false is returned; the recorded value never decreases.
func (t *TimestampRegion) Touch(ctx context.Context, region string, now int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, _, _ := t.currentLocked(ctx, region)
	if now < current {
		t.log.Debug("timestamp regression rejected",
			zap.String("region", region),
			zap.Int64("current", current),
			zap.Int64("now", now),
		)
		monitoring.RecordTimestampTouch(region, current, false)
		return false
	}
	if now == current {
		return true
	}

	t.floor[region] = now
	// A failed write is already logged; the floor keeps this process consistent.
	_ = t.access.saveWithTTL(ctx, timestampKey(region), timestampValue{Region: region, Value: now}, 0)
	monitoring.RecordTimestampTouch(region, now, true)
	return true
}

// LastInvalidation returns region's recorded time, or the baseline 0 with false when the region
// has never been touched.
func (t *TimestampRegion) LastInvalidation(ctx context.Context, region string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	value, known, _ := t.currentLocked(ctx, region)
	return value, known
}

// Fresh reports whether an entry created at createdAt is still valid for every region in regions.
// An unreadable timestamp counts as stale.
func (t *TimestampRegion) Fresh(ctx context.Context, regions []string, createdAt int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, region := range regions {
		value, _, err := t.currentLocked(ctx, region)
		if err != nil || value >= createdAt {
			return false
		}
	}
	return true
}

func (t *TimestampRegion) currentLocked(ctx context.Context, region string) (int64, bool, error) {
	floor, known := t.floor[region]

	var stored timestampValue
	found, err := t.access.load(ctx, timestampKey(region), &stored)
	if found && stored.Value > floor {
		// Another process sharing the store touched the region.
		t.floor[region] = stored.Value
		return stored.Value, true, err
	}
	return floor, known || found, err
}
