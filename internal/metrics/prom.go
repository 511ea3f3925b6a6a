package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for completed tasks.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector records scheduling decisions and their outcomes. Each Collector
// owns its registry so several runs in one process never collide.
type Collector struct {
	Assignments *prometheus.CounterVec
	Completions *prometheus.CounterVec
	WaitSeconds prometheus.Histogram
	AgentBusy   *prometheus.GaugeVec

	registry *prometheus.Registry

	mu        sync.Mutex
	waits     []time.Duration
	completed int
	started   time.Time
	now       func() time.Time
}

// NewCollector creates a Collector with all metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		Assignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "dispatch_assignments_total", Help: "Tasks assigned to agents"},
			[]string{"policy", "agent"},
		),
		Completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "dispatch_completions_total", Help: "Finished tasks by outcome"},
			[]string{"outcome"},
		),
		WaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "dispatch_wait_seconds", Help: "Time from registration to assignment"},
		),
		AgentBusy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "dispatch_agent_busy", Help: "Tasks currently held by an agent"},
			[]string{"agent"},
		),
		registry: prometheus.NewRegistry(),
		now:      time.Now,
	}
	c.started = c.now()
	for _, m := range c.Collectors() {
		c.registry.MustRegister(m)
	}
	return c
}

// Collectors returns every metric owned by c.
func (c *Collector) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.Assignments, c.Completions, c.WaitSeconds, c.AgentBusy}
}

// Registry returns the registry holding c's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveAssignment records one scheduling decision. wait is the time the
// task spent pending, measured by the caller.
func (c *Collector) ObserveAssignment(policy, agent string, wait time.Duration, busy int) {
	c.Assignments.WithLabelValues(policy, agent).Inc()
	c.WaitSeconds.Observe(wait.Seconds())
	c.AgentBusy.WithLabelValues(agent).Set(float64(busy))

	c.mu.Lock()
	c.waits = append(c.waits, wait)
	c.mu.Unlock()
}

// ObserveRelease records an agent's load after a slot was freed.
func (c *Collector) ObserveRelease(agent string, busy int) {
	c.AgentBusy.WithLabelValues(agent).Set(float64(busy))
}

// ObserveCompletion records a finished task.
func (c *Collector) ObserveCompletion(success bool) {
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	c.Completions.WithLabelValues(outcome).Inc()

	if success {
		c.mu.Lock()
		c.completed++
		c.mu.Unlock()
	}
}

// Summary is a point-in-time digest of a Collector.
type Summary struct {
	Assigned    int
	Completed   int
	AverageWait time.Duration
	Throughput  float64 // successful tasks per second since the collector was created
}

// Summary returns averages computed from the samples recorded so far.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Summary{
		Assigned:    len(c.waits),
		Completed:   c.completed,
		AverageWait: AverageWaitTime(c.waits),
		Throughput:  Throughput(c.completed, c.now().Sub(c.started)),
	}
}

// WriteTextfile writes the current metrics in the Prometheus text format,
// suitable for the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
