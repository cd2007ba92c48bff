// Package ratelimit provides fixed-window request throttling keyed by
// opaque strings such as "user:42" or "login:alice@example.com".
//
// The window is fixed, not sliding: a burst straddling a window boundary
// can admit up to twice the limit in a short span. That is an accepted
// property of the scheme, not a defect.
package ratelimit

import (
	"context"
	"time"
)

// Window is the fixed window length.
const Window = 60 * time.Second

// Decision reports the outcome of one Allow call.
type Decision struct {
	Admitted     bool
	Limit        int
	Remaining    int
	ResetSeconds int
}

// Limiter admits or denies one request for a key. Implementations must be
// safe for concurrent use from multiple request handlers sharing one
// instance.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
