package vacuum

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// refreshTimeout bounds a scheduled refresh; it is detached from the
// command's context.
const refreshTimeout = 10 * time.Second

type commandOptions struct {
	refresh      []string
	refreshDelay time.Duration
	skipAck      bool
}

// CommandOption customizes Execute.
type CommandOption func(*commandOptions)

// WithRefresh schedules a fetch of names once the command succeeds.
func WithRefresh(names ...string) CommandOption {
	return func(o *commandOptions) {
		o.refresh = append(o.refresh, names...)
	}
}

// WithRefreshDelay delays the scheduled refresh. The default is immediate.
func WithRefreshDelay(delay time.Duration) CommandOption {
	return func(o *commandOptions) {
		o.refreshDelay = delay
	}
}

// withoutAck passes the response through without success validation,
// for calls that answer with an opaque value.
func withoutAck() CommandOption {
	return func(o *commandOptions) {
		o.skipAck = true
	}
}

// Execute sends method with params and validates the acknowledgement.
// The response is returned unexamined beyond its success marker. A
// requested refresh runs in the background after the result is returned.
func (d *Device) Execute(ctx context.Context, method string, params any, opts ...CommandOption) (any, error) {
	var o commandOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()
	result, err := d.caller.Call(ctx, method, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceCommunication, method, err)
	}
	if !o.skipAck && !IsSuccess(result) {
		return nil, CommandRejectedError{Method: method, Response: result}
	}
	if len(o.refresh) > 0 {
		d.scheduleRefresh(o.refresh, o.refreshDelay)
	}
	return result, nil
}

// IsSuccess reports whether an acknowledgement is the literal 0 or an
// array whose first element is "ok".
func IsSuccess(result any) bool {
	switch v := result.(type) {
	case []any:
		if len(v) == 0 {
			return false
		}
		s, ok := v[0].(string)
		return ok && s == "ok"
	case []string:
		return len(v) > 0 && v[0] == "ok"
	case float64:
		return v == 0
	case int:
		return v == 0
	case int64:
		return v == 0
	case json.Number:
		return v.String() == "0"
	default:
		return false
	}
}

func (d *Device) scheduleRefresh(names []string, delay time.Duration) {
	names = append([]string(nil), names...)
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := d.Refresh(ctx, names...); err != nil && !d.closed.Load() {
			d.logger.Printf("vacuum %s: refresh of %s failed: %v", d.cfg.ID, strings.Join(names, ","), err)
		}
	}
	if delay <= 0 {
		go run()
		return
	}
	time.AfterFunc(delay, run)
}

func (d *Device) stateRefresh() []CommandOption {
	return []CommandOption{WithRefresh(PropState), WithRefreshDelay(d.cfg.RefreshDelay)}
}

// Start begins a full clean.
func (d *Device) Start(ctx context.Context) error {
	_, err := d.Execute(ctx, "app_start", nil, d.stateRefresh()...)
	return err
}

func (d *Device) Pause(ctx context.Context) error {
	_, err := d.Execute(ctx, "app_pause", nil, d.stateRefresh()...)
	return err
}

func (d *Device) Stop(ctx context.Context) error {
	_, err := d.Execute(ctx, "app_stop", nil, d.stateRefresh()...)
	return err
}

// Dock stops the current job and sends the vacuum to its charger.
func (d *Device) Dock(ctx context.Context) error {
	if _, err := d.Execute(ctx, "app_stop", nil); err != nil {
		return err
	}
	_, err := d.Execute(ctx, "app_charge", nil, d.stateRefresh()...)
	return err
}

func (d *Device) Spot(ctx context.Context) error {
	_, err := d.Execute(ctx, "app_spot", nil, d.stateRefresh()...)
	return err
}

// Find makes the vacuum announce its position.
func (d *Device) Find(ctx context.Context) error {
	_, err := d.Execute(ctx, "find_me", nil)
	return err
}

// Fan speed presets understood by set_custom_mode.
var fanSpeeds = map[string]int{
	"quiet":    38,
	"balanced": 60,
	"turbo":    77,
}

// ParseFanSpeed accepts a preset name or an integer between 1 and 100.
func ParseFanSpeed(value string) (int, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if speed, ok := fanSpeeds[value]; ok {
		return speed, nil
	}
	speed, err := strconv.Atoi(value)
	if err != nil || speed < 1 || speed > 100 {
		return 0, fmt.Errorf("%w: fan speed %q: use quiet, balanced, turbo or 1-100", ErrInvalidArgument, value)
	}
	return speed, nil
}

func (d *Device) SetFanSpeed(ctx context.Context, speed int) error {
	if speed < 1 || speed > 100 {
		return fmt.Errorf("%w: fan speed %d", ErrInvalidArgument, speed)
	}
	_, err := d.Execute(ctx, "set_custom_mode", []any{speed},
		WithRefresh(PropFanSpeed), WithRefreshDelay(d.cfg.RefreshDelay))
	return err
}

// CleanZones cleans the given rectangles. The device answers with an
// opaque value which is returned as is.
func (d *Device) CleanZones(ctx context.Context, zones []Zone) (any, error) {
	if len(zones) == 0 {
		return nil, fmt.Errorf("%w: at least one zone is required", ErrInvalidArgument)
	}
	params := make([]any, 0, len(zones))
	for _, z := range zones {
		repeats := z.Repeats
		if repeats == 0 {
			repeats = 1
		}
		params = append(params, []int{z.X1, z.Y1, z.X2, z.Y2, repeats})
	}
	opts := append(d.stateRefresh(), withoutAck())
	return d.Execute(ctx, "app_zoned_clean", []any{params}, opts...)
}

// GoTo sends the vacuum to a map coordinate.
func (d *Device) GoTo(ctx context.Context, x, y int) (any, error) {
	opts := append(d.stateRefresh(), withoutAck())
	return d.Execute(ctx, "app_goto_target", []any{x, y}, opts...)
}
