package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charlesng35/formdesk/pkg/metrics"
)

// ProbeStatus is the outcome of one dependency probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// ProbeKind separates probes that keep the process alive from those that gate traffic.
type ProbeKind string

const (
	KindLiveness  ProbeKind = "liveness"
	KindReadiness ProbeKind = "readiness"
)

// ProbeResult is what a single probe reports back.
type ProbeResult struct {
	Component string        `json:"component"`
	Kind      ProbeKind     `json:"kind,omitempty"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"-"`
	LatencyMS float64       `json:"latency_ms"`
}

// HealthReport is the folded view of a probe set.
type HealthReport struct {
	Success   bool          `json:"success"`
	Status    ProbeStatus   `json:"status"`
	CheckedAt time.Time     `json:"checked_at"`
	Checks    []ProbeResult `json:"checks"`
}

// Check is a named probe function.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck wraps fn. A nil fn always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager holds the probes registered by the server bootstrap and runs them on demand.
type HealthManager struct {
	mu     sync.RWMutex
	probes map[ProbeKind][]Check
	now    func() time.Time
}

// NewHealthManager returns a manager without probes. An empty probe set reports up.
func NewHealthManager() *HealthManager {
	return &HealthManager{
		probes: make(map[ProbeKind][]Check, 2),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterLiveness adds a probe that reflects process health (cron cleaner freshness).
func (m *HealthManager) RegisterLiveness(check Check) {
	m.register(KindLiveness, check)
}

// RegisterReadiness adds a probe for a dependency the API needs (database, Redis).
func (m *HealthManager) RegisterReadiness(check Check) {
	m.register(KindReadiness, check)
}

func (m *HealthManager) register(kind ProbeKind, check Check) {
	if check.Name == "" || check.Run == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[kind] = append(m.probes[kind], check)
}

// EvaluateLiveness runs the liveness probes concurrently.
func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, KindLiveness)
}

// EvaluateReadiness runs the readiness probes concurrently.
func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, KindReadiness)
}

func (m *HealthManager) evaluate(ctx context.Context, kind ProbeKind) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.RLock()
	probes := append([]Check(nil), m.probes[kind]...)
	m.mu.RUnlock()

	results := make([]ProbeResult, len(probes))
	var wg sync.WaitGroup
	wg.Add(len(probes))
	for i := range probes {
		go func(i int) {
			defer wg.Done()
			results[i] = runProbe(ctx, kind, probes[i])
			recordProbe(results[i])
		}(i)
	}
	wg.Wait()

	status, success := fold(results)
	return HealthReport{
		Success:   success,
		Status:    status,
		CheckedAt: m.now(),
		Checks:    results,
	}
}

// fold reduces statuses to the most severe one; only an all-up set succeeds.
func fold(results []ProbeResult) (ProbeStatus, bool) {
	status := StatusUp
	for _, r := range results {
		if r.Status == StatusDown {
			return StatusDown, false
		}
		if r.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status, status == StatusUp
}

func runProbe(ctx context.Context, kind ProbeKind, check Check) (result ProbeResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: panicDetails(rec)}
		}
		result.Component = check.Name
		result.Kind = kind
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration <= 0 {
			result.Duration = time.Since(start)
		}
		result.LatencyMS = float64(result.Duration.Microseconds()) / 1000
	}()
	return check.Run(ctx)
}

func panicDetails(rec any) string {
	switch v := rec.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("panic: %v", v)
	}
}

func recordProbe(result ProbeResult) {
	up := 0.0
	if result.Status == StatusUp {
		up = 1
	}
	metrics.HealthProbeUp.WithLabelValues(result.Component, string(result.Kind)).Set(up)
}

// MergeReports joins a liveness and a readiness report, used by the combined /health endpoint.
func MergeReports(live, ready HealthReport) HealthReport {
	checks := make([]ProbeResult, 0, len(live.Checks)+len(ready.Checks))
	checks = append(checks, live.Checks...)
	checks = append(checks, ready.Checks...)

	status, success := fold(checks)
	checkedAt := ready.CheckedAt
	if live.CheckedAt.After(checkedAt) {
		checkedAt = live.CheckedAt
	}
	return HealthReport{
		Success:   success,
		Status:    status,
		CheckedAt: checkedAt,
		Checks:    checks,
	}
}

// ResultFromError maps a probe error to a result. Timeouts and cancellations degrade, anything else is down.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	result := ProbeResult{Component: component, Status: StatusUp, Duration: max(duration, 0)}
	if err == nil {
		return result
	}
	result.Details = err.Error()
	result.Status = StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		result.Status = StatusDegraded
	}
	return result
}
