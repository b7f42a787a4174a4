package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	caches sync.Map // string -> *cacheStats

	storeErrors    atomic.Uint64
	storeLastError atomic.Value // *FailureRecord

	touchesAdvanced atomic.Uint64
	touchesRejected atomic.Uint64

	databaseQueries atomic.Uint64

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	store := &statStore{}
	store.storeLastError.Store((*FailureRecord)(nil))
	return store
}

type cacheStats struct {
	hits       atomic.Uint64
	misses     atomic.Uint64
	incomplete atomic.Uint64
	stale      atomic.Uint64
	puts       atomic.Uint64
	evictions  atomic.Uint64
}

func (c *cacheStats) recordLookup(result string) {
	switch result {
	case ResultHit:
		c.hits.Add(1)
	case ResultIncomplete:
		c.incomplete.Add(1)
	case ResultStale:
		c.stale.Add(1)
	default:
		c.misses.Add(1)
	}
}

func (c *cacheStats) snapshot(kind string) CacheKindSummary {
	hits := c.hits.Load()
	lookups := hits + c.misses.Load() + c.incomplete.Load() + c.stale.Load()
	var ratio float64
	if lookups > 0 {
		ratio = float64(hits) / float64(lookups)
	}
	return CacheKindSummary{
		Kind:       kind,
		Hits:       hits,
		Misses:     c.misses.Load(),
		Incomplete: c.incomplete.Load(),
		Stale:      c.stale.Load(),
		Puts:       c.puts.Load(),
		Evictions:  c.evictions.Load(),
		HitRatio:   ratio,
	}
}

func (s *statStore) cacheEntry(kind string) *cacheStats {
	value, ok := s.caches.Load(kind)
	if ok {
		return value.(*cacheStats)
	}
	stats := &cacheStats{}
	actual, _ := s.caches.LoadOrStore(kind, stats)
	return actual.(*cacheStats)
}

func (s *statStore) cloneCaches() []CacheKindSummary {
	summaries := []CacheKindSummary{}
	s.caches.Range(func(key, value any) bool {
		summaries = append(summaries, value.(*cacheStats).snapshot(key.(string)))
		return true
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Kind < summaries[j].Kind })
	return summaries
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		job := key.(string)
		stats := value.(*maintenanceStats)
		summaries = append(summaries, stats.snapshot(job))
		return true
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Job < summaries[j].Job })
	return summaries
}

func (s *statStore) summary() Summary {
	lastError, _ := s.storeLastError.Load().(*FailureRecord)

	return Summary{
		GeneratedAt: time.Now(),
		Caches:      s.cloneCaches(),
		Store: StoreSummary{
			Errors:    s.storeErrors.Load(),
			LastError: lastError,
		},
		Timestamps: TimestampSummary{
			Advanced: s.touchesAdvanced.Load(),
			Rejected: s.touchesRejected.Load(),
		},
		Database: DatabaseSummary{
			Queries: s.databaseQueries.Load(),
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) recordStoreError(record FailureRecord) {
	s.storeErrors.Add(1)
	cloned := record
	s.storeLastError.Store(&cloned)
}

func (s *statStore) recordTouch(advanced bool) {
	if advanced {
		s.touchesAdvanced.Add(1)
		return
	}
	s.touchesRejected.Add(1)
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	value, ok := s.maintenance.Load(job)
	if ok {
		return value.(*maintenanceStats)
	}
	stats := &maintenanceStats{}
	actual, _ := s.maintenance.LoadOrStore(job, stats)
	return actual.(*maintenanceStats)
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	consecutiveFailures  atomic.Uint64
	totalRuns            atomic.Uint64
	lastSuccessfulRun    atomic.Int64
	consecutiveSuccesses atomic.Uint64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           time.Unix(0, m.lastRun.Load()),
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       time.Unix(0, m.lastSuccessfulRun.Load()),
		TotalRuns:           m.totalRuns.Load(),
	}
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	switch result {
	case "success":
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
	default:
		m.consecutiveFailures.Add(1)
		m.consecutiveSuccesses.Store(0)
	}
}
