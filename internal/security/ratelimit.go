// Package security guards the two adapter surfaces a pathological client
// could abuse: repeated evaluate/setDataBreakpoints calls (rate limiting)
// and the expression text itself (length/charset validation) before it
// ever reaches the Lua evaluator. Adapted from the teacher's
// internal/core/security/{ratelimit,validation}.go, generalized from
// shell-command whitelisting to DAP-operation limits.
package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter manages one rate.Limiter per DAP operation name.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiter builds an empty Limiter; per-operation limiters are created
// lazily on first use.
func NewLimiter() *Limiter {
	return &Limiter{limiters: make(map[string]*rate.Limiter)}
}

// operationLimits are the default requests/sec and burst per DAP command
// this package defends; anything not listed falls back to "default".
var operationLimits = map[string]struct {
	rps   float64
	burst int
}{
	"evaluate":           {rps: 20, burst: 40},
	"setVariable":        {rps: 10, burst: 20},
	"setDataBreakpoints": {rps: 5, burst: 10},
	"default":            {rps: 50, burst: 100},
}

func (l *Limiter) limiterFor(operation string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[operation]; ok {
		return lim
	}

	cfg, ok := operationLimits[operation]
	if !ok {
		cfg = operationLimits["default"]
	}
	lim := rate.NewLimiter(rate.Limit(cfg.rps), cfg.burst)
	l.limiters[operation] = lim
	return lim
}

// Allow reports whether operation may proceed right now, without blocking.
func (l *Limiter) Allow(operation string) bool {
	return l.limiterFor(operation).Allow()
}

// Wait blocks until operation is allowed or ctx is done, whichever is
// first. Callers pass a context bounded by the adapter's own command
// timeout so a saturated limiter can't hang a request indefinitely.
func (l *Limiter) Wait(ctx context.Context, operation string) error {
	return l.limiterFor(operation).Wait(ctx)
}

// WaitDefault is Wait with a 5 second fallback context, for call sites that
// have no request-scoped context of their own to thread through.
func (l *Limiter) WaitDefault(operation string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.Wait(ctx, operation)
}
