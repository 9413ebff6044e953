package vacuum

import (
	"context"
	"io"
	"log"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshp123/mivac/internal/miio"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultCallTimeout  = 5 * time.Second
)

// DeviceConfig describes one appliance.
type DeviceConfig struct {
	ID           string
	Name         string
	Model        string
	PollInterval time.Duration
	RefreshDelay time.Duration
	CallTimeout  time.Duration
	Logger       *log.Logger
}

// Device owns the property cache and derived signals of one appliance.
type Device struct {
	cfg     DeviceConfig
	schema  *Schema
	caller  miio.Caller
	fetcher *Fetcher
	logger  *log.Logger

	seq    atomic.Uint64
	closed atomic.Bool

	// dispatchMu serializes cache application with listener notification
	// so listeners see fetch cycles one at a time.
	dispatchMu sync.Mutex

	mu         sync.RWMutex
	snapshot   Snapshot
	applied    map[string]uint64
	signals    Signals
	lastFetch  time.Time
	lastErr    error
	staleDrops int
	// appliedSeq is the newest fetch applied; errSeq the fetch that set lastErr.
	appliedSeq uint64
	errSeq     uint64

	listenersMu     sync.Mutex
	nextListener    int
	changeListeners []changeListener
	signalListeners []signalListener
}

type changeListener struct {
	id int
	fn func(Change)
}

type signalListener struct {
	id int
	fn func(SignalUpdate)
}

func NewDevice(cfg DeviceConfig, caller miio.Caller) *Device {
	return newDevice(cfg, NewVacuumSchema(), caller)
}

func newDevice(cfg DeviceConfig, schema *Schema, caller miio.Caller) *Device {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", log.LstdFlags)
	}
	return &Device{
		cfg:      cfg,
		schema:   schema,
		caller:   caller,
		fetcher:  NewFetcher(schema, caller),
		logger:   logger,
		snapshot: make(Snapshot),
		applied:  make(map[string]uint64),
	}
}

func (d *Device) ID() string {
	return d.cfg.ID
}

func (d *Device) Config() DeviceConfig {
	return d.cfg
}

func (d *Device) Schema() *Schema {
	return d.schema
}

// Properties returns a copy of the cached snapshot.
func (d *Device) Properties() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot.clone()
}

func (d *Device) Property(name string) any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if def, ok := d.schema.Definition(name); ok {
		return d.snapshot[def.Name]
	}
	return d.snapshot[name]
}

func (d *Device) Signals() Signals {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.signals
}

// LastFetch reports when the cache was last updated and the error of
// the most recent fetch, if it failed.
func (d *Device) LastFetch() (time.Time, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastFetch, d.lastErr
}

func (d *Device) StaleDrops() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.staleDrops
}

// OnChange registers fn for every property change. The returned func
// unregisters it. Listeners run synchronously and must not call Refresh.
func (d *Device) OnChange(fn func(Change)) func() {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.nextListener++
	id := d.nextListener
	d.changeListeners = append(d.changeListeners, changeListener{id: id, fn: fn})
	return func() {
		d.listenersMu.Lock()
		defer d.listenersMu.Unlock()
		for i, l := range d.changeListeners {
			if l.id == id {
				d.changeListeners = append(d.changeListeners[:i], d.changeListeners[i+1:]...)
				return
			}
		}
	}
}

// OnSignal registers fn for signal updates.
func (d *Device) OnSignal(fn func(SignalUpdate)) func() {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.nextListener++
	id := d.nextListener
	d.signalListeners = append(d.signalListeners, signalListener{id: id, fn: fn})
	return func() {
		d.listenersMu.Lock()
		defer d.listenersMu.Unlock()
		for i, l := range d.signalListeners {
			if l.id == id {
				d.signalListeners = append(d.signalListeners[:i], d.signalListeners[i+1:]...)
				return
			}
		}
	}
}

// Refresh fetches the named properties, or every declared property when
// names is empty, and dispatches the resulting changes.
func (d *Device) Refresh(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		names = d.schema.Names()
	}
	seq := d.seq.Add(1)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()
	fetched, err := d.fetcher.Fetch(ctx, names)
	if err != nil {
		d.recordFailure(seq, err)
		return err
	}
	d.apply(seq, fetched)
	return nil
}

// Run polls the device until ctx is done.
func (d *Device) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := d.Refresh(ctx); err != nil && ctx.Err() == nil {
			d.logger.Printf("vacuum %s: poll failed: %v", d.cfg.ID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close marks the device as torn down. In-flight and scheduled refreshes
// still complete but no longer log failures.
func (d *Device) Close() {
	d.closed.Store(true)
}

// recordFailure keeps err as the device's fetch error unless a fetch
// issued after seq has already succeeded.
func (d *Device) recordFailure(seq uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seq < d.appliedSeq {
		d.logger.Printf("vacuum %s: ignoring failure of superseded fetch %d: %v", d.cfg.ID, seq, err)
		return
	}
	if seq >= d.errSeq {
		d.lastErr = err
		d.errSeq = seq
	}
}

type dispatch struct {
	change  Change
	updates []SignalUpdate
}

// apply merges a fetch issued with sequence number seq into the cache.
// Properties already written by a later-issued fetch are left untouched.
func (d *Device) apply(seq uint64, fetched Snapshot) {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	d.mu.Lock()
	accepted := make(Snapshot, len(fetched))
	names := make([]string, 0, len(fetched))
	for name, value := range fetched {
		if d.applied[name] > seq {
			d.staleDrops++
			continue
		}
		d.applied[name] = seq
		accepted[name] = value
		names = append(names, name)
	}
	if dropped := len(fetched) - len(accepted); dropped > 0 {
		d.logger.Printf("vacuum %s: dropped %d stale properties from fetch %d", d.cfg.ID, dropped, seq)
	}

	changes := diff(d.snapshot, accepted, d.schema.Order(names))
	view := d.snapshot.clone()
	signals := d.signals
	batch := make([]dispatch, 0, len(changes))
	for _, change := range changes {
		view[change.Name] = change.Value
		batch = append(batch, dispatch{change: change, updates: react(&signals, change, view)})
	}
	d.snapshot = view
	d.signals = signals
	d.lastFetch = time.Now()
	if seq > d.appliedSeq {
		d.appliedSeq = seq
	}
	if d.errSeq <= seq {
		d.lastErr = nil
	}
	d.mu.Unlock()

	d.listenersMu.Lock()
	changeListeners := append([]changeListener(nil), d.changeListeners...)
	signalListeners := append([]signalListener(nil), d.signalListeners...)
	d.listenersMu.Unlock()

	for _, item := range batch {
		for _, l := range changeListeners {
			l.fn(item.change)
		}
		for _, update := range item.updates {
			for _, l := range signalListeners {
				l.fn(update)
			}
		}
	}
}

// react runs one change through the status state machine and the fan
// speed signal. view holds every change of the cycle processed so far.
func react(signals *Signals, change Change, view Snapshot) []SignalUpdate {
	var updates []SignalUpdate
	switch change.Name {
	case PropState:
		label, _ := change.Value.(string)
		status := DeriveStatus(label, errorValue(view[PropError]))
		if signals.State != status.Label {
			signals.State = status.Label
			updates = append(updates, SignalUpdate{Name: SignalState, Value: status.Label})
		}
		if signals.Charging != status.Charging {
			signals.Charging = status.Charging
			updates = append(updates, SignalUpdate{Name: SignalCharging, Value: status.Charging})
		}
		if signals.Cleaning != status.Cleaning {
			signals.Cleaning = status.Cleaning
			updates = append(updates, SignalUpdate{Name: SignalCleaning, Value: status.Cleaning})
		}
		if !sameError(signals.Error, status.Error) {
			signals.Error = status.Error
			updates = append(updates, SignalUpdate{Name: SignalError, Value: status.Error})
		}
	case PropFanSpeed:
		if !reflect.DeepEqual(signals.FanSpeed, change.Value) {
			signals.FanSpeed = change.Value
			updates = append(updates, SignalUpdate{Name: SignalFanSpeed, Value: change.Value})
		}
	}
	return updates
}

func sameError(a, b *ErrorInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
