package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/l2cache/internal/cache"
	"github.com/charlesng35/l2cache/internal/database/testutil"
	"github.com/charlesng35/l2cache/internal/monitoring"
)

type queryEvictorStub struct {
	calls int
	err   error
}

func (s *queryEvictorStub) EvictQueryRegions(context.Context) error {
	s.calls++
	return s.err
}

type purgerStub struct {
	err error
}

func (s purgerStub) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, s.err
}

func TestCleanerRunOncePurgesExpiredEntries(t *testing.T) {
	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "entity:expiring", []byte(`{"v":1}`), time.Hour))
	require.NoError(t, store.Set(ctx, "entity:forever", []byte(`{"v":2}`), 0))

	queries := &queryEvictorStub{}
	later := time.Now().Add(2 * time.Hour)
	c := NewCleaner(store, queries,
		WithNow(func() time.Time { return later }),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(ctx))
	require.Equal(t, 1, queries.calls)

	var remaining int64
	require.NoError(t, db.Table("cache_entries").Count(&remaining).Error)
	require.Equal(t, int64(1), remaining)

	_, ok, err := store.Get(ctx, "entity:forever")
	require.NoError(t, err)
	require.True(t, ok)

	summary := monitoring.Snapshot()
	jobs := map[string]monitoring.MaintenanceJobSummary{}
	for _, job := range summary.Maintenance.Jobs {
		jobs[job.Job] = job
	}
	require.Equal(t, "success", jobs[jobPurgeExpired].LastStatus)
	require.Equal(t, "success", jobs[jobEvictQueries].LastStatus)
}

func TestCleanerRunOnceCombinesFailures(t *testing.T) {
	queries := &queryEvictorStub{err: errors.New("store unavailable")}
	c := NewCleaner(purgerStub{err: errors.New("database locked")}, queries)

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "database locked")
	require.ErrorContains(t, err, "store unavailable")
	require.Equal(t, 1, queries.calls)
}

func TestCleanerStartSchedulesEnabledJobs(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(purgerStub{}, &queryEvictorStub{},
		WithCron(scheduler),
		WithQueryEvictionSchedule("@hourly"),
	)
	require.NoError(t, c.Start())
	defer c.Stop()
	require.Len(t, scheduler.Entries(), 2)
	require.Equal(t, []string{jobPurgeExpired, jobEvictQueries}, c.Jobs())
}

func TestCleanerStartSkipsDisabledJobs(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(purgerStub{}, &queryEvictorStub{},
		WithCron(scheduler),
		WithPurgeSchedule(""),
	)
	require.NoError(t, c.Start())
	require.Empty(t, scheduler.Entries())
	require.Empty(t, c.Jobs())

	c = NewCleaner(nil, nil, WithCron(cron.New()), WithQueryEvictionSchedule("not a schedule"))
	require.NoError(t, c.Start())
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	c := NewCleaner(purgerStub{}, nil,
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
		WithPurgeSchedule("not a schedule"),
	)
	require.ErrorContains(t, c.Start(), jobPurgeExpired)
}
