package worker

import (
	"math"
	"math/rand"
	"time"
)

// NextRetry returns when a job that has burned `attempts` executions should
// run again: base^attempts seconds, capped at one hour, plus up to 10%
// jitter. Jitter only pushes the time out, never in, so the pre-jitter
// delay stays a hard lower bound.
func NextRetry(attempts int, base float64, now time.Time) time.Time {
	delay := time.Duration(math.Pow(base, float64(attempts)) * float64(time.Second))
	if delay <= 0 || delay > time.Hour {
		delay = time.Hour
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return now.Add(delay + jitter)
}
