package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joshp123/mivac/internal/miio"
)

// RateLimitError is returned when calls are blocked.
type RateLimitError struct {
	Device  string
	Method  string
	Reason  string
	RetryAt time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s %s rate limited: %s", e.Device, e.Method, e.Reason)
	}
	return fmt.Sprintf("%s %s rate limited: %s (retry at %s)", e.Device, e.Method, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

// State tracks the token buckets of one guard.
type State struct {
	buckets map[Window]*bucket
	blocked int
}

// Blocked returns how many calls the guard has refused.
func (s *State) Blocked() int {
	return s.blocked
}

// Guard enforces a call budget for a device.
type Guard struct {
	decl Declaration
	now  func() time.Time
	mu   sync.Mutex
	// state is mutated under mu
	state State
}

func NewGuard(decl Declaration) *Guard {
	return newGuard(decl, time.Now)
}

func newGuard(decl Declaration, now func() time.Time) *Guard {
	state := State{buckets: make(map[Window]*bucket)}
	start := now()
	for window, limit := range decl.Limits() {
		state.buckets[window] = &bucket{
			capacity: limit,
			tokens:   float64(limit),
			last:     start,
		}
	}
	return &Guard{decl: decl, now: now, state: state}
}

// WrapCaller wraps a device caller with budget enforcement.
// A declaration without limits passes every call through.
func WrapCaller(decl Declaration, base miio.Caller) miio.Caller {
	if !decl.HasLimits() && decl.CustomPolicy() == nil {
		return base
	}
	guard := NewGuard(decl)
	return miio.CallerFunc(func(ctx context.Context, method string, params any) (any, error) {
		decision := guard.ShouldCall(guard.now())
		if !decision.Allowed {
			return nil, RateLimitError{
				Device:  decl.DeviceID(),
				Method:  method,
				Reason:  decision.Reason,
				RetryAt: decision.RetryAt,
			}
		}
		return base.Call(ctx, method, params)
	})
}

func (g *Guard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	decision := g.decide(now)
	if !decision.Allowed {
		g.state.blocked++
		blockedCounter.WithLabelValues(g.decl.DeviceID(), decision.Reason).Inc()
	}
	return decision
}

func (g *Guard) decide(now time.Time) Decision {
	if g.decl.CustomPolicy() != nil {
		return g.decl.CustomPolicy()(&g.state, now)
	}

	for window, b := range g.state.buckets {
		if b.capacity <= 0 {
			return Decision{Allowed: false, Reason: "disabled"}
		}
		if !consumeToken(b, window.Duration(), now) {
			retryAt := b.last.Add(window.Duration() / time.Duration(b.capacity))
			return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
		}
		remainingGauge.WithLabelValues(g.decl.DeviceID(), window.String()).Set(b.tokens)
	}

	return Decision{Allowed: true}
}

func consumeToken(b *bucket, window time.Duration, now time.Time) bool {
	if b.last.IsZero() {
		b.last = now
	}
	elapsed := now.Sub(b.last).Seconds()
	refillRate := float64(b.capacity) / window.Seconds()
	b.tokens = min(float64(b.capacity), b.tokens+elapsed*refillRate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}
