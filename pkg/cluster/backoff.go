package cluster

import (
	"math"
	"math/rand"
	"time"
)

// jitteredExponential returns a time.Duration to wait before the next poll
// when employing a "jittered" exponential backoff. The value is based on the
// number of polls so far and the maximum desired interval, then jittered so
// that repeated polls against a contended control plane stagger themselves.
func jitteredExponential(pollCount int, maxDelay time.Duration) time.Duration {
	base := math.Pow(2, float64(pollCount))
	capped := math.Min(base, maxDelay.Seconds())
	jittered := (1 + rand.Float64()) * (capped / 2)
	scaled := jittered * float64(time.Second)
	return time.Duration(scaled)
}
