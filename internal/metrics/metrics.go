// Package metrics computes dispatch statistics and exports them as
// Prometheus collectors.
package metrics

import (
	"math"
	"time"
)

// AverageWaitTime returns the mean of waits, or 0 for an empty slice.
func AverageWaitTime(waits []time.Duration) time.Duration {
	if len(waits) == 0 {
		return 0
	}
	var total time.Duration
	for _, w := range waits {
		total += w
	}
	return total / time.Duration(len(waits))
}

// Throughput returns completed tasks per second over elapsed.
// A non-positive elapsed yields +Inf when anything completed and 0 otherwise.
func Throughput(completed int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		if completed > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return float64(completed) / elapsed.Seconds()
}
