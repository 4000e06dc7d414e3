package monitoring

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlesng35/formdesk/pkg/metrics"
)

// JobSummary is the run history of one background job.
type JobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	TotalRuns           uint64        `json:"total_runs"`
}

// JobTracker records background job runs for health reporting.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobSummary
	now  func() time.Time
}

// NewJobTracker constructs an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*JobSummary), now: time.Now}
}

// Register adds a job that has not run yet.
func (t *JobTracker) Register(job string) {
	job = strings.TrimSpace(job)
	if job == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[job]; !ok {
		t.jobs[job] = &JobSummary{Job: job}
	}
}

// Record stores the outcome of a job run.
func (t *JobTracker) Record(job string, runErr error, duration time.Duration) {
	job = strings.TrimSpace(job)
	if job == "" {
		job = "unknown"
	}
	if duration < 0 {
		duration = 0
	}
	result := "success"
	if runErr != nil {
		result = "failure"
	}
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.jobs[job]
	if !ok {
		entry = &JobSummary{Job: job}
		t.jobs[job] = entry
	}
	entry.LastStatus = result
	entry.LastRunAt = now
	entry.LastDuration = duration
	entry.TotalRuns++
	if runErr != nil {
		entry.LastError = runErr.Error()
		entry.ConsecutiveFailures++
		return
	}
	entry.LastError = ""
	entry.LastSuccessAt = now
	entry.ConsecutiveFailures = 0
}

// Jobs returns a copy of every job summary ordered by name.
func (t *JobTracker) Jobs() []JobSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]JobSummary, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Job < out[b].Job })
	return out
}
