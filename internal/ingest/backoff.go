package ingest

import (
	"math/rand"
	"time"
)

// retryDelay computes the jittered exponential backoff for a stream
// reconnect attempt: min(max, base*2^attempt + uniform(0, base)).
func retryDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 15 * time.Second
	}

	exp := base
	for i := 0; i < attempt; i++ {
		exp *= 2
		if exp >= max {
			exp = max
			break
		}
	}

	delay := exp + time.Duration(rand.Int63n(int64(base)+1))
	if delay > max {
		delay = max
	}
	return delay
}
