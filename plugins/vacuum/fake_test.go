package vacuum

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type recordedCall struct {
	method string
	params any
}

// fakeVacuum answers miIO calls from in-memory records.
type fakeVacuum struct {
	mu         sync.Mutex
	status     map[string]any
	consumable map[string]any
	results    map[string]any
	errs       map[string]error
	calls      []recordedCall
	// hook runs before a get_status answer is produced.
	hook func(ctx context.Context) error
}

func newFakeVacuum() *fakeVacuum {
	return &fakeVacuum{
		status:     map[string]any{},
		consumable: map[string]any{},
		results:    map[string]any{},
		errs:       map[string]error{},
	}
}

func (f *fakeVacuum) Call(ctx context.Context, method string, params any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: method, params: params})
	hook := f.hook
	f.mu.Unlock()

	if method == methodGetStatus && hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[method]; err != nil {
		return nil, err
	}
	switch method {
	case methodGetStatus:
		return []any{copyRecord(f.status)}, nil
	case methodGetConsumable:
		return []any{copyRecord(f.consumable)}, nil
	}
	if result, ok := f.results[method]; ok {
		return result, nil
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

func (f *fakeVacuum) set(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[key] = value
}

func (f *fakeVacuum) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func (f *fakeVacuum) count(method string) int {
	n := 0
	for _, m := range f.methods() {
		if m == method {
			n++
		}
	}
	return n
}

func copyRecord(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func newTestDevice(f *fakeVacuum) *Device {
	return NewDevice(DeviceConfig{ID: "kitchen", Name: "Kitchen", CallTimeout: time.Second}, f)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
