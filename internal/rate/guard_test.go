package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joshp123/mivac/internal/miio"
)

func TestGuardRefillsOverTime(t *testing.T) {
	start := time.Unix(1700000000, 0)
	guard := newGuard(Device("vac").MaxRequestsPer(Minute, 2), func() time.Time { return start })

	if !guard.ShouldCall(start).Allowed {
		t.Fatalf("first call should be allowed")
	}
	if !guard.ShouldCall(start).Allowed {
		t.Fatalf("second call should be allowed")
	}
	decision := guard.ShouldCall(start)
	if decision.Allowed {
		t.Fatalf("third call should be blocked")
	}
	if decision.Reason != "budget" {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
	if !decision.RetryAt.Equal(start.Add(30 * time.Second)) {
		t.Fatalf("unexpected retry at %s", decision.RetryAt)
	}

	if !guard.ShouldCall(start.Add(31 * time.Second)).Allowed {
		t.Fatalf("call after refill should be allowed")
	}
	if guard.state.Blocked() != 1 {
		t.Fatalf("expected 1 blocked call, got %d", guard.state.Blocked())
	}
}

func TestGuardZeroLimitDisables(t *testing.T) {
	guard := NewGuard(Device("vac").MaxRequestsPer(Second, 0))
	decision := guard.ShouldCall(time.Now())
	if decision.Allowed || decision.Reason != "disabled" {
		t.Fatalf("expected disabled decision, got %+v", decision)
	}
}

func TestGuardCustomPolicy(t *testing.T) {
	decl := Device("vac").Custom(func(_ *State, _ time.Time) Decision {
		return Decision{Allowed: false, Reason: "maintenance"}
	})
	decision := NewGuard(decl).ShouldCall(time.Now())
	if decision.Allowed || decision.Reason != "maintenance" {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestWrapCallerBlocks(t *testing.T) {
	calls := 0
	base := miio.CallerFunc(func(_ context.Context, _ string, _ any) (any, error) {
		calls++
		return 0, nil
	})
	caller := WrapCaller(Device("vac").MaxRequestsPer(Day, 1), base)

	if _, err := caller.Call(context.Background(), "app_start", nil); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := caller.Call(context.Background(), "app_stop", nil)
	var rateErr RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.Method != "app_stop" || rateErr.Device != "vac" {
		t.Fatalf("unexpected error fields %+v", rateErr)
	}
	if calls != 1 {
		t.Fatalf("expected 1 underlying call, got %d", calls)
	}
}

func TestWrapCallerWithoutLimitsPassesThrough(t *testing.T) {
	base := miio.CallerFunc(func(_ context.Context, _ string, _ any) (any, error) {
		return "pong", nil
	})
	caller := WrapCaller(Device("vac"), base)
	for i := 0; i < 10; i++ {
		result, err := caller.Call(context.Background(), "ping", nil)
		if err != nil || result != "pong" {
			t.Fatalf("unexpected result %v, %v", result, err)
		}
	}
}
