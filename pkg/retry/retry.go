// Package retry provides the bounded polling loop used wherever the
// pipeline has to absorb latency between a subprocess finishing and its
// effect becoming observable: transfer verification, expansion output
// appearing, and disposal verification. It is a tolerance window, not a
// mechanism for retrying fundamentally failed operations.
package retry

import (
	"context"
	"time"
)

// Until calls fn up to attempts times, sleeping delay between calls,
// until fn reports done. It returns true if fn reported done within the
// budget. An error from fn aborts the loop immediately; the predicate is
// for observation, not for work that can legitimately fail transiently.
func Until(ctx context.Context, attempts int, delay time.Duration, fn func() (bool, error)) (bool, error) {
	for i := 0; i < attempts; i++ {
		done, err := fn()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
	}
	return false, nil
}
