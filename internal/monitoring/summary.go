package monitoring

import "time"

// Summary surfaces aggregated monitoring data for administrative dashboards.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Caches      []CacheKindSummary `json:"caches"`
	Store       StoreSummary       `json:"store"`
	Timestamps  TimestampSummary   `json:"timestamps"`
	Database    DatabaseSummary    `json:"database"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

// CacheKindSummary aggregates lookups for one region kind (entity, collection, query).
type CacheKindSummary struct {
	Kind       string  `json:"kind"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Incomplete uint64  `json:"incomplete"`
	Stale      uint64  `json:"stale"`
	Puts       uint64  `json:"puts"`
	Evictions  uint64  `json:"evictions"`
	HitRatio   float64 `json:"hit_ratio"`
}

type FailureRecord struct {
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	Occurred  time.Time `json:"occurred_at"`
}

type StoreSummary struct {
	Errors    uint64         `json:"errors"`
	LastError *FailureRecord `json:"last_error,omitempty"`
}

type TimestampSummary struct {
	Advanced uint64 `json:"advanced"`
	Rejected uint64 `json:"rejected"`
}

type DatabaseSummary struct {
	Queries uint64 `json:"queries"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := ensureModule(); module != nil && module.stats != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}
