// Package ratelimit provides the keyed sliding-window counter behind
// the request throttling middleware. It is abuse throttling, not a
// security boundary: the in-memory store is single-process and resets
// on restart.
package ratelimit

import (
	"context"
	"time"
)

// Store counts hits per key inside a sliding time window.
type Store interface {
	// Allow records a hit for key and reports whether it is within the
	// ceiling. When rejected, retryAfter hints how long the caller
	// should wait.
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}
