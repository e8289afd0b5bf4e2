// Package health serves liveness and readiness probes for the tankwars
// server. Readiness aggregates one check per component: the tick runner,
// the websocket listener, the replay store and process memory.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// HealthCheck is one component's probe.
type HealthCheck interface {
	Name() string
	// Check returns an error when the component is unhealthy.
	Check(ctx context.Context) error
}

// HealthStatus is the aggregated readiness report.
type HealthStatus struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth is the result of a single check.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker runs registered checks.
type HealthChecker struct {
	checks map[string]HealthCheck
	mu     sync.RWMutex
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
	}
}

// AddCheck registers check, replacing any check with the same name.
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

func (hc *HealthChecker) RemoveCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// CheckHealth runs every check. The overall status is "healthy" only if all
// of them pass.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := HealthStatus{
		Status: "healthy",
		Checks: make(map[string]ComponentHealth, len(hc.checks)),
	}

	for name, check := range hc.checks {
		if err := check.Check(ctx); err != nil {
			status.Status = "unhealthy"
			status.Checks[name] = ComponentHealth{Status: "unhealthy", Message: err.Error()}
			continue
		}
		status.Checks[name] = ComponentHealth{Status: "healthy"}
	}

	return status
}

// LivenessHandler answers 200 while the process can serve HTTP at all.
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// ReadinessHandler runs all checks and answers 200 or 503 with the report.
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := hc.CheckHealth(ctx)

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// Handler mounts /health (liveness) and /ready (readiness).
func (hc *HealthChecker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hc.LivenessHandler)
	mux.HandleFunc("/ready", hc.ReadinessHandler)
	return mux
}

// TickSource is what the runner check needs. *engine.Runner implements it.
type TickSource interface {
	Running() bool
	LastTick() time.Time
}

// RunnerHealthCheck fails when the tick loop is stopped or has stalled.
type RunnerHealthCheck struct {
	source   TickSource
	maxStall time.Duration
	now      func() time.Time
}

// NewRunnerHealthCheck treats a runner with no tick for maxStall as stalled.
// A runner that has never ticked (no matches yet) is healthy while running.
func NewRunnerHealthCheck(source TickSource, maxStall time.Duration) *RunnerHealthCheck {
	return &RunnerHealthCheck{source: source, maxStall: maxStall, now: time.Now}
}

func (c *RunnerHealthCheck) Name() string { return "runner" }

func (c *RunnerHealthCheck) Check(ctx context.Context) error {
	if !c.source.Running() {
		return fmt.Errorf("tick runner is not running")
	}
	last := c.source.LastTick()
	if last.IsZero() {
		return nil
	}
	if stall := c.now().Sub(last); stall > c.maxStall {
		return fmt.Errorf("no tick for %s", stall.Round(time.Millisecond))
	}
	return nil
}

// NetworkHealthCheck fails until the websocket listener is bound.
type NetworkHealthCheck struct {
	listenerAddr func() string
}

func NewNetworkHealthCheck(listenerAddr func() string) *NetworkHealthCheck {
	return &NetworkHealthCheck{listenerAddr: listenerAddr}
}

func (n *NetworkHealthCheck) Name() string { return "network" }

func (n *NetworkHealthCheck) Check(ctx context.Context) error {
	if n.listenerAddr() == "" {
		return fmt.Errorf("network listener is not active")
	}
	return nil
}

// ReplayStore is what the replay check needs. *replay.Store implements it.
type ReplayStore interface {
	Ping(ctx context.Context) error
	BreakerState() gobreaker.State
}

// ReplayHealthCheck fails when the database is unreachable or journal
// writes are being dropped by an open breaker.
type ReplayHealthCheck struct {
	store ReplayStore
}

func NewReplayHealthCheck(store ReplayStore) *ReplayHealthCheck {
	return &ReplayHealthCheck{store: store}
}

func (r *ReplayHealthCheck) Name() string { return "replay" }

func (r *ReplayHealthCheck) Check(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("replay store unreachable: %w", err)
	}
	if st := r.store.BreakerState(); st == gobreaker.StateOpen {
		return fmt.Errorf("journal breaker is %s", st)
	}
	return nil
}

// MemoryHealthCheck fails when heap usage exceeds a limit.
type MemoryHealthCheck struct {
	maxMemoryMB    int64
	getMemoryUsage func() int64
}

// NewMemoryHealthCheck uses HeapAllocMB when getMemoryUsage is nil.
func NewMemoryHealthCheck(maxMemoryMB int64, getMemoryUsage func() int64) *MemoryHealthCheck {
	if getMemoryUsage == nil {
		getMemoryUsage = HeapAllocMB
	}
	return &MemoryHealthCheck{maxMemoryMB: maxMemoryMB, getMemoryUsage: getMemoryUsage}
}

func (m *MemoryHealthCheck) Name() string { return "memory" }

func (m *MemoryHealthCheck) Check(ctx context.Context) error {
	if current := m.getMemoryUsage(); current > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", current, m.maxMemoryMB)
	}
	return nil
}

// HeapAllocMB is the live heap in megabytes.
func HeapAllocMB() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc / (1024 * 1024))
}
