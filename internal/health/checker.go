package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pinger is satisfied by *pgxpool.Pool and the queue clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckResult represents the health of a single dependency.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type probe struct {
	name   string
	pinger Pinger
}

// Checker verifies that registered dependencies are reachable.
type Checker struct {
	probes []probe
	logger *slog.Logger
	gauge  *prometheus.GaugeVec
}

// NewChecker creates a health checker and registers its Prometheus gauge.
// Dependencies are added with Watch before the server starts.
func NewChecker(logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jobengine",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		logger: logger.With("component", "health"),
		gauge:  gauge,
	}
}

// Watch registers a named dependency for readiness checks. Not safe to call
// after the checker is serving.
func (c *Checker) Watch(name string, p Pinger) {
	c.probes = append(c.probes, probe{name: name, pinger: p})
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness pings every registered dependency and reports per-check status.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult),
	}

	for _, pr := range c.probes {
		if err := pr.pinger.Ping(checkCtx); err != nil {
			c.logger.Warn("health check failed", "dependency", pr.name, "error", err)
			result.Status = "down"
			result.Checks[pr.name] = CheckResult{Status: "down", Error: err.Error()}
			c.gauge.WithLabelValues(pr.name).Set(0)
		} else {
			result.Checks[pr.name] = CheckResult{Status: "up"}
			c.gauge.WithLabelValues(pr.name).Set(1)
		}
	}

	return result
}
