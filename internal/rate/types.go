package rate

import "time"

// Window represents a rate-limit bucket.
type Window int

const (
	Second Window = iota
	Minute
	Day
)

func (w Window) String() string {
	switch w {
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Day:
		return "day"
	default:
		return "unknown"
	}
}

func (w Window) Duration() time.Duration {
	switch w {
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Declaration defines the call budget for one device.
type Declaration struct {
	device string
	limits map[Window]int
	custom CustomPolicy
}

// Device creates a new declaration for a device.
func Device(id string) Declaration {
	return Declaration{device: id}
}

func (d Declaration) DeviceID() string {
	return d.device
}

func (d Declaration) MaxRequestsPer(window Window, limit int) Declaration {
	limits := make(map[Window]int, len(d.limits)+1)
	for w, l := range d.limits {
		limits[w] = l
	}
	limits[window] = limit
	d.limits = limits
	return d
}

func (d Declaration) Custom(policy CustomPolicy) Declaration {
	d.custom = policy
	return d
}

func (d Declaration) Limits() map[Window]int {
	return d.limits
}

func (d Declaration) CustomPolicy() CustomPolicy {
	return d.custom
}

func (d Declaration) HasLimits() bool {
	return len(d.limits) > 0
}

// CustomPolicy allows callers to override decision logic.
type CustomPolicy func(state *State, now time.Time) Decision
