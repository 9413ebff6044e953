package vacuum

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/joshp123/mivac/internal/config"
	"github.com/joshp123/mivac/internal/core"
	"github.com/joshp123/mivac/internal/miio"
	"github.com/joshp123/mivac/internal/mqttbus"
	"github.com/joshp123/mivac/internal/rate"
)

//go:embed dashboard.json
var dashboardJSON []byte

const (
	pluginID            = "vacuum"
	healthCheckInterval = 5 * time.Second
)

// Plugin runs one Device per configured appliance.
type Plugin struct {
	devices    map[string]*Device
	order      []string
	collectors []prometheus.Collector
	grpcHealth *health.Server
	logger     *log.Logger

	closeMu sync.Mutex
	closers []func()
}

var (
	_ core.Plugin         = (*Plugin)(nil)
	_ core.HTTPRegistrant = (*Plugin)(nil)
	_ core.Runner         = (*Plugin)(nil)
)

// NewPlugin builds a device per config entry. Requests to each device go
// over transport through a rate guard; changes and signals are mirrored
// back onto the broker.
func NewPlugin(cfg *config.Config, transport mqttbus.Transport, logger *log.Logger) (*Plugin, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", log.LstdFlags)
	}
	var devices []*Device
	var closers []func()
	for _, dc := range cfg.Devices {
		topics := mqttbus.Topics{Prefix: cfg.MQTT.TopicPrefix, DeviceID: dc.ID}
		mqttCaller, err := mqttbus.NewCaller(transport, topics, logger)
		if err != nil {
			for _, closeFn := range closers {
				closeFn()
			}
			return nil, fmt.Errorf("device %s: %w", dc.ID, err)
		}
		closers = append(closers, mqttCaller.Close)

		decl := rate.Device(dc.ID).MaxRequestsPer(rate.Minute, dc.MaxRequestsPerMinute)
		var caller miio.Caller = rate.WrapCaller(decl, mqttCaller)

		device := NewDevice(DeviceConfig{
			ID:           dc.ID,
			Name:         dc.Name,
			Model:        dc.Model,
			PollInterval: dc.PollInterval,
			RefreshDelay: dc.RefreshDelay,
			CallTimeout:  dc.CallTimeout,
			Logger:       logger,
		}, caller)
		closers = append(closers, mirror(device, mqttbus.NewPublisher(transport, topics), logger)...)
		devices = append(devices, device)
	}
	p := newPlugin(devices, logger)
	p.closers = append(p.closers, closers...)
	return p, nil
}

func newPlugin(devices []*Device, logger *log.Logger) *Plugin {
	if logger == nil {
		logger = log.New(io.Discard, "", log.LstdFlags)
	}
	p := &Plugin{
		devices:    make(map[string]*Device, len(devices)),
		grpcHealth: health.NewServer(),
		logger:     logger,
	}
	for _, d := range devices {
		p.devices[d.ID()] = d
		p.order = append(p.order, d.ID())
	}
	p.collectors = []prometheus.Collector{NewMetricsCollector(devices)}
	p.updateHealth()
	return p
}

// mirror publishes every change and signal update of device.
func mirror(device *Device, pub *mqttbus.Publisher, logger *log.Logger) []func() {
	offChange := device.OnChange(func(c Change) {
		if err := pub.PublishProperty(c.Name, c.Value, c.Previous); err != nil {
			logger.Printf("vacuum %s: publish %s: %v", device.ID(), c.Name, err)
		}
	})
	offSignal := device.OnSignal(func(u SignalUpdate) {
		if err := pub.PublishSignal(string(u.Name), u.Value); err != nil {
			logger.Printf("vacuum %s: publish signal %s: %v", device.ID(), u.Name, err)
		}
	})
	return []func(){offChange, offSignal}
}

func (p *Plugin) ID() string {
	return pluginID
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    pluginID,
		DisplayName: "Vacuum",
		Version:     "0.1.0",
		Services:    []string{"grpc.health.v1.Health"},
	}
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "vacuum-overview", JSON: dashboardJSON}}
}

func (p *Plugin) Collectors() []prometheus.Collector {
	return p.collectors
}

// Device looks up a configured device by id.
func (p *Plugin) Device(id string) (*Device, error) {
	d, ok := p.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return d, nil
}

// Devices returns the configured devices in config order.
func (p *Plugin) Devices() []*Device {
	out := make([]*Device, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.devices[id])
	}
	return out
}

// Run polls every device until ctx is done, then closes them.
func (p *Plugin) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range p.Devices() {
		wg.Add(1)
		go func(d *Device) {
			defer wg.Done()
			d.Run(ctx)
		}(d)
	}

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			p.Close()
			return
		case <-ticker.C:
			p.updateHealth()
		}
	}
}

// Close detaches the devices from the broker. Scheduled refreshes that
// are still pending complete quietly.
func (p *Plugin) Close() {
	for _, d := range p.devices {
		d.Close()
	}
	p.grpcHealth.Shutdown()

	p.closeMu.Lock()
	closers := p.closers
	p.closers = nil
	p.closeMu.Unlock()
	for _, closeFn := range closers {
		closeFn()
	}
}

// Health is HEALTHY when every device answered its last fetch, ERROR
// when none did, and DEGRADED otherwise.
func (p *Plugin) Health() core.HealthStatus {
	failing := p.failingDevices()
	switch {
	case len(p.devices) == 0:
		return core.HealthError
	case len(failing) == 0:
		return core.HealthHealthy
	case len(failing) == len(p.devices):
		return core.HealthError
	default:
		return core.HealthDegraded
	}
}

func (p *Plugin) HealthMessage() string {
	if len(p.devices) == 0 {
		return "no devices configured"
	}
	failing := p.failingDevices()
	ids := make([]string, 0, len(failing))
	for id := range failing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+": "+failing[id])
	}
	return strings.Join(parts, "; ")
}

func (p *Plugin) failingDevices() map[string]string {
	failing := make(map[string]string)
	for id, d := range p.devices {
		last, err := d.LastFetch()
		switch {
		case err != nil:
			failing[id] = err.Error()
		case last.IsZero():
			failing[id] = "no successful fetch yet"
		}
	}
	return failing
}

func (p *Plugin) RegisterGRPC(server *grpc.Server) {
	registerHealth(server, p.grpcHealth)
}
