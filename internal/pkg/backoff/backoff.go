package backoff

import (
	"math/rand/v2"
	"time"
)

const maxDelay = 30 * time.Second

// Delay returns base*2^(attempt-1) with +/-25% jitter, capped at 30s.
// attempt 0 means no wait.
func Delay(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if d > maxDelay || d <= 0 {
		d = maxDelay
	}
	half := int64(d) / 2
	if half <= 0 {
		return d
	}
	jitter := time.Duration(rand.Int64N(half)) - d/4
	return d + jitter
}
