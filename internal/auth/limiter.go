package auth

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/routemesh-go/pkg/cmap"
)

// DefaultLimiterIdle is how long an untouched client budget is kept.
const DefaultLimiterIdle = 10 * time.Minute

type clientBudget struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// AttemptLimiter throttles failed authentication attempts per client
// address. Each client may fail burst times in a row, after which the
// budget refills at the configured rate.
type AttemptLimiter struct {
	clients *cmap.Map[string, *clientBudget]
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

// NewAttemptLimiter allows perSecond failures per second with the given
// burst. A non-positive perSecond disables throttling.
func NewAttemptLimiter(perSecond float64, burst int) *AttemptLimiter {
	if burst < 1 {
		burst = 1
	}
	return &AttemptLimiter{
		clients: cmap.New[string, *clientBudget](),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    DefaultLimiterIdle,
		now:     time.Now,
	}
}

// Enabled reports whether the limiter throttles anything.
func (l *AttemptLimiter) Enabled() bool {
	return l != nil && l.limit > 0
}

func (l *AttemptLimiter) budget(client string) *clientBudget {
	b, _ := l.clients.GetOrCreate(client, func() *clientBudget {
		return &clientBudget{limiter: rate.NewLimiter(l.limit, l.burst)}
	})
	b.lastSeen.Store(l.now().UnixNano())
	return b
}

// Blocked reports whether client has exhausted its budget, and when the
// next attempt will be accepted.
func (l *AttemptLimiter) Blocked(client string) (bool, time.Duration) {
	if !l.Enabled() {
		return false, 0
	}
	b, ok := l.clients.Get(client)
	if !ok {
		return false, 0
	}
	now := l.now()
	if b.limiter.TokensAt(now) >= 1 {
		return false, 0
	}
	r := b.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return true, delay
}

// Fail charges one failed attempt to client.
func (l *AttemptLimiter) Fail(client string) {
	if !l.Enabled() {
		return
	}
	l.budget(client).limiter.AllowN(l.now(), 1)
}

// Sweep drops budgets idle for longer than the idle period and returns how
// many were removed.
func (l *AttemptLimiter) Sweep() int {
	if l == nil {
		return 0
	}
	cutoff := l.now().Add(-l.idle).UnixNano()
	return l.clients.DeleteFunc(func(_ string, b *clientBudget) bool {
		return b.lastSeen.Load() < cutoff
	})
}

// Tracked returns the number of clients with a budget.
func (l *AttemptLimiter) Tracked() int {
	if l == nil {
		return 0
	}
	return l.clients.Count()
}
