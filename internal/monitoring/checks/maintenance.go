package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/l2cache/internal/monitoring"
)

const defaultMaintenanceMaxAge = 6 * time.Hour

// Maintenance reports the housekeeping jobs recorded by the monitoring module. A job with
// consecutive failures fails the probe; a job idle for longer than maxAge (default 6h) degrades it.
// Jobs named in expected that never ran are reported as pending.
func Maintenance(maxAge time.Duration, expected ...string) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		jobs := monitoring.Snapshot().Maintenance.Jobs

		seen := make(map[string]bool, len(jobs))
		status := monitoring.StatusUp
		var notes []string
		for _, job := range jobs {
			seen[job.Job] = true
			switch {
			case job.ConsecutiveFailures > 0:
				status = monitoring.WorstStatus(status, monitoring.StatusDown)
				notes = append(notes, job.Job+": "+job.LastError)
			case !job.LastRunAt.IsZero() && start.Sub(job.LastRunAt) > maxAge:
				status = monitoring.WorstStatus(status, monitoring.StatusDegraded)
				notes = append(notes, job.Job+": last run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}
		for _, name := range expected {
			if !seen[name] {
				notes = append(notes, name+": pending first run")
			}
		}

		return monitoring.ProbeResult{
			Status:   status,
			Details:  strings.Join(notes, "; "),
			Duration: time.Since(start),
		}
	})
}
