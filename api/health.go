package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/alexliesenfeld/health"
)

const defaultHealthTimeout = 5 * time.Second

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthChecks is the set of dependency checks served on /health.
type HealthChecks struct {
	mu      sync.Mutex
	checks  []health.Check
	timeout time.Duration
}

func NewHealthChecks(timeout time.Duration) *HealthChecks {
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	return &HealthChecks{timeout: timeout}
}

// Add registers check under name. Checks added after Checker was called are
// not part of that checker.
func (h *HealthChecks) Add(name string, check HealthCheck) *HealthChecks {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, health.Check{Name: name, Check: check, Timeout: h.timeout})
	return h
}

// Checker builds a checker running every registered check concurrently on
// each request. Results are not cached.
func (h *HealthChecks) Checker() health.Checker {
	h.mu.Lock()
	defer h.mu.Unlock()
	opts := []health.CheckerOption{
		health.WithTimeout(h.timeout),
		health.WithDisabledCache(),
	}
	for _, c := range h.checks {
		opts = append(opts, health.WithCheck(c))
	}
	return health.NewChecker(opts...)
}

// Run executes the registered checks once.
func (h *HealthChecks) Run(ctx context.Context) health.CheckerResult {
	return h.Checker().Check(ctx)
}

// Handler answers 200 with the aggregated report when every check is up and
// 503 otherwise.
func (h *HealthChecks) Handler() http.Handler {
	return health.NewHandler(h.Checker())
}
