package feed

import (
	"context"
	"math/rand"
	"time"
)

// backoffDelay returns a full-jitter exponential backoff delay: uniform in
// [0, min(cap, base*2^(attempt-1))]. Jitter keeps a room full of viewers
// from re-dialing in lockstep after a server restart.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ceiling := base
	for i := 1; i < attempt && ceiling < max; i++ {
		ceiling *= 2
	}
	if ceiling > max {
		ceiling = max
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// sleepCtx waits for the delay or until the context ends; reports whether
// the full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
