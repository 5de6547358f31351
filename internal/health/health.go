// Package health runs the readiness probes behind /health/ready.
package health

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// Status is the outcome of one probe.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Checker probes one dependency. It must honour ctx cancellation.
type Checker func(ctx context.Context) Status

// Registry is a named set of probes. Probes run concurrently on every check.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds or replaces the probe called name.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = check
}

// Names returns the registered probe names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll runs every probe and reports whether all of them passed. Results
// are ordered by name.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	names := r.Names()

	r.mu.RLock()
	checks := make([]Checker, len(names))
	for i, name := range names {
		checks[i] = r.checkers[name]
	}
	r.mu.RUnlock()

	statuses := make([]Status, len(names))
	var wg sync.WaitGroup
	for i := range checks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Now()
			st := checks[i](ctx)
			st.Name = names[i]
			st.LatencyMS = time.Since(start).Milliseconds()
			statuses[i] = st
		}(i)
	}
	wg.Wait()

	healthy := true
	for _, st := range statuses {
		healthy = healthy && st.Healthy
	}
	return healthy, statuses
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

var _ Pinger = (*sql.DB)(nil)

// DatabaseChecker reports whether db answers a ping within timeout.
func DatabaseChecker(db Pinger, timeout time.Duration) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return Status{Detail: err.Error()}
		}
		return Status{Healthy: true}
	}
}
