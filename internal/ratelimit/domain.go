// Package ratelimit implements fixed-window request limiting with
// pluggable counter stores.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Decision is the outcome of counting one request against a key.
// RetryAfter holds the time until the key's window resets regardless of
// the verdict.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// SecondsUntilReset reports the whole seconds until the window resets,
// rounded up.
func (d Decision) SecondsUntilReset() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Store counts one request against a client key. Take is a single
// atomic read-check-increment: concurrent takes for the same key can
// never admit more than limit requests within one window. The counter
// for a key whose window elapsed is reset on its next take, never by a
// background sweep.
type Store interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}
