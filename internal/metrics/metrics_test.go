package metrics

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAverageWaitTime(t *testing.T) {
	tests := []struct {
		name  string
		waits []time.Duration
		want  time.Duration
	}{
		{"empty", nil, 0},
		{"single", []time.Duration{3 * time.Second}, 3 * time.Second},
		{"several", []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, 2 * time.Second},
		{"zeros", []time.Duration{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AverageWaitTime(tt.waits); got != tt.want {
				t.Errorf("AverageWaitTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThroughput(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		elapsed   time.Duration
		want      float64
	}{
		{"per second", 10, 5 * time.Second, 2},
		{"nothing done", 0, time.Second, 0},
		{"zero elapsed none done", 0, 0, 0},
		{"zero elapsed some done", 3, 0, math.Inf(1)},
		{"negative elapsed", 1, -time.Second, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Throughput(tt.completed, tt.elapsed); got != tt.want {
				t.Errorf("Throughput() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollector_Counts(t *testing.T) {
	c := NewCollector()

	c.ObserveAssignment("lru", "a1", time.Second, 1)
	c.ObserveAssignment("lru", "a1", 3*time.Second, 2)
	c.ObserveAssignment("lru", "a2", 2*time.Second, 1)
	c.ObserveRelease("a1", 1)
	c.ObserveCompletion(true)
	c.ObserveCompletion(false)

	if got := testutil.ToFloat64(c.Assignments.WithLabelValues("lru", "a1")); got != 2 {
		t.Errorf("a1 assignments = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.AgentBusy.WithLabelValues("a1")); got != 1 {
		t.Errorf("a1 busy gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Completions.WithLabelValues(OutcomeFailure)); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.WaitSeconds); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}

	s := c.Summary()
	if s.Assigned != 3 || s.Completed != 1 {
		t.Errorf("Summary() = %+v", s)
	}
	if s.AverageWait != 2*time.Second {
		t.Errorf("AverageWait = %v, want 2s", s.AverageWait)
	}
}

func TestCollector_SummaryThroughput(t *testing.T) {
	c := NewCollector()
	start := c.started
	c.now = func() time.Time { return start.Add(2 * time.Second) }

	for i := 0; i < 4; i++ {
		c.ObserveCompletion(true)
	}
	if got := c.Summary().Throughput; got != 2 {
		t.Errorf("Throughput = %v, want 2", got)
	}
}

func TestCollector_SeparateRegistries(t *testing.T) {
	// Registering the same metric names twice must not panic
	a := NewCollector()
	b := NewCollector()
	a.ObserveCompletion(true)

	if got := testutil.ToFloat64(b.Completions.WithLabelValues(OutcomeSuccess)); got != 0 {
		t.Errorf("collectors share state: %v", got)
	}
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := NewCollector()
	c.ObserveAssignment("dag", "a1", 0, 1)

	path := filepath.Join(t.TempDir(), "dispatch.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `dispatch_assignments_total{agent="a1",policy="dag"} 1`) {
		t.Errorf("textfile missing assignment counter:\n%s", data)
	}
}
