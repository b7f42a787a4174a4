package monitoring

import (
	"strings"
	"time"
)

// Cache lookup results.
const (
	ResultHit        = "hit"
	ResultMiss       = "miss"
	ResultIncomplete = "incomplete"
	ResultStale      = "stale"
)

// RecordCacheLookup counts a second-level cache lookup.
func RecordCacheLookup(kind, region, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	kind = normalizeLabel(kind)
	result = normalizeLabel(result)
	module.metrics.cacheRequests.WithLabelValues(kind, regionLabel(region), result).Inc()
	module.stats.cacheEntry(kind).recordLookup(result)
}

// RecordRegion publishes a configured region in the region info gauge.
func RecordRegion(kind, region string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.regionInfo.WithLabelValues(normalizeLabel(kind), regionLabel(region)).Set(1)
}

// RecordCachePut counts an entry written to the cache.
func RecordCachePut(kind, region string) {
	module := ensureModule()
	if module == nil {
		return
	}
	kind = normalizeLabel(kind)
	module.metrics.cachePuts.WithLabelValues(kind, regionLabel(region)).Inc()
	module.stats.cacheEntry(kind).puts.Add(1)
}

// RecordCacheEviction counts an eviction. Scope is "entry" or "region".
func RecordCacheEviction(kind, region, scope string) {
	module := ensureModule()
	if module == nil {
		return
	}
	kind = normalizeLabel(kind)
	module.metrics.cacheEvictions.WithLabelValues(kind, regionLabel(region), normalizeLabel(scope)).Inc()
	module.stats.cacheEntry(kind).evictions.Add(1)
}

// RecordStoreError counts a physical store failure that was degraded to a miss.
func RecordStoreError(operation, message string) {
	module := ensureModule()
	if module == nil {
		return
	}
	operation = normalizeLabel(operation)
	module.metrics.storeErrors.WithLabelValues(operation).Inc()
	module.stats.recordStoreError(FailureRecord{
		Operation: operation,
		Message:   strings.TrimSpace(message),
		Occurred:  time.Now(),
	})
}

// RecordTimestampTouch records a timestamp region update. Rejected touches never move the gauge.
func RecordTimestampTouch(region string, value int64, advanced bool) {
	module := ensureModule()
	if module == nil {
		return
	}
	region = regionLabel(region)
	result := "rejected"
	if advanced {
		result = "advanced"
		module.metrics.regionTimestamp.WithLabelValues(region).Set(float64(value))
	}
	module.metrics.timestampTouches.WithLabelValues(region, result).Inc()
	module.stats.recordTouch(advanced)
}

// RecordDatabaseQuery counts a statement issued to the canonical store.
func RecordDatabaseQuery(operation string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.databaseQueries.WithLabelValues(normalizeLabel(operation)).Inc()
	module.stats.databaseQueries.Add(1)
}

// ObserveAPILatency captures the HTTP request latency for the supplied route.
func ObserveAPILatency(method, path, status string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	module.metrics.apiLatency.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	jobID := normalizeLabel(job)
	result = normalizeLabel(result)
	module.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == "success" {
		module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
	}
	stats := module.stats.maintenanceEntry(jobID)
	stats.record(result, strings.TrimSpace(message), duration)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func regionLabel(region string) string {
	region = strings.TrimSpace(region)
	if region == "" {
		return "unknown"
	}
	return region
}

func sanitizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "/" {
		return "root"
	}
	path = strings.Trim(path, "/")
	return strings.ReplaceAll(path, " ", "_")
}
