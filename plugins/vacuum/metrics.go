package vacuum

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports the cached state of every device. Collect
// never talks to the devices.
type MetricsCollector struct {
	devices []*Device
	mu      sync.Mutex

	fetchSuccess   *prometheus.GaugeVec
	lastFetch      *prometheus.GaugeVec
	staleDrops     *prometheus.Desc
	batteryPercent *prometheus.GaugeVec
	state          *prometheus.GaugeVec
	errorCode      *prometheus.GaugeVec
	charging       *prometheus.GaugeVec
	cleaning       *prometheus.GaugeVec
	fanSpeed       *prometheus.GaugeVec
	cleaningArea   *prometheus.GaugeVec
	cleaningTime   *prometheus.GaugeVec
	consumableTime *prometheus.GaugeVec
}

var consumables = map[string]string{
	PropMainBrushWorkTime: "main_brush",
	PropSideBrushWorkTime: "side_brush",
	PropFilterWorkTime:    "filter",
	PropSensorDirtyTime:   "sensor",
}

func NewMetricsCollector(devices []*Device) *MetricsCollector {
	labels := []string{"device_id", "device_name", "model"}
	stateLabels := []string{"device_id", "device_name", "model", "state"}
	errorLabels := []string{"device_id", "device_name", "model", "error_code"}
	consumableLabels := []string{"device_id", "device_name", "model", "consumable"}
	return &MetricsCollector{
		devices: devices,
		fetchSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_fetch_success",
			Help: "Last fetch success (1=ok, 0=error)",
		}, labels),
		lastFetch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_last_fetch_timestamp_seconds",
			Help: "Last successful fetch (seconds since epoch)",
		}, labels),
		staleDrops: prometheus.NewDesc(
			"mivac_vacuum_stale_properties_dropped_total",
			"Properties discarded because a later fetch had already written them",
			labels, nil,
		),
		batteryPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_battery_percent",
			Help: "Battery percentage (0-100)",
		}, labels),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_state",
			Help: "Vacuum state (label)",
		}, stateLabels),
		errorCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_error",
			Help: "Active vacuum error (label)",
		}, errorLabels),
		charging: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_charging",
			Help: "Whether the vacuum is charging (1=yes, 0=no)",
		}, labels),
		cleaning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_cleaning",
			Help: "Whether the vacuum is cleaning (1=yes, 0=no)",
		}, labels),
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_fan_speed",
			Help: "Fan power (1-100)",
		}, labels),
		cleaningArea: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_cleaning_area_square_meters",
			Help: "Current cleaning area (square meters)",
		}, labels),
		cleaningTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_cleaning_time_seconds",
			Help: "Current cleaning time (seconds)",
		}, labels),
		consumableTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mivac_vacuum_consumable_work_time_seconds",
			Help: "Consumable work time since last reset (seconds)",
		}, consumableLabels),
	}
}

func (c *MetricsCollector) vecs() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		c.fetchSuccess, c.lastFetch, c.batteryPercent, c.state, c.errorCode,
		c.charging, c.cleaning, c.fanSpeed, c.cleaningArea, c.cleaningTime, c.consumableTime,
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, v := range c.vecs() {
		v.Describe(ch)
	}
	ch <- c.staleDrops
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.vecs() {
		v.Reset()
	}

	for _, d := range c.devices {
		labels := prometheus.Labels{
			"device_id":   d.cfg.ID,
			"device_name": d.cfg.Name,
			"model":       d.cfg.Model,
		}
		last, err := d.LastFetch()
		c.fetchSuccess.With(labels).Set(boolGauge(err == nil && !last.IsZero()))
		if !last.IsZero() {
			c.lastFetch.With(labels).Set(float64(last.Unix()))
		}
		// The device owns the count, so it is exported as a const counter.
		ch <- prometheus.MustNewConstMetric(c.staleDrops, prometheus.CounterValue,
			float64(d.StaleDrops()), d.cfg.ID, d.cfg.Name, d.cfg.Model)
		if last.IsZero() {
			continue
		}

		props := d.Properties()
		signals := d.Signals()
		if v, ok := props[PropBatteryLevel]; ok && v != nil {
			c.batteryPercent.With(labels).Set(floatFrom(v))
		}
		if v, ok := props[PropCleanArea]; ok && v != nil {
			c.cleaningArea.With(labels).Set(floatFrom(v))
		}
		if v, ok := props[PropCleanTime]; ok && v != nil {
			c.cleaningTime.With(labels).Set(floatFrom(v))
		}
		if signals.FanSpeed != nil {
			c.fanSpeed.With(labels).Set(floatFrom(signals.FanSpeed))
		}
		c.charging.With(labels).Set(boolGauge(signals.Charging))
		c.cleaning.With(labels).Set(boolGauge(signals.Cleaning))

		if signals.State != "" {
			c.state.With(withLabel(labels, "state", signals.State)).Set(1)
		}
		if signals.Error != nil {
			c.errorCode.With(withLabel(labels, "error_code", signals.Error.Code)).Set(1)
		}
		for prop, name := range consumables {
			if v, ok := props[prop]; ok && v != nil {
				c.consumableTime.With(withLabel(labels, "consumable", name)).Set(floatFrom(v))
			}
		}
	}

	for _, v := range c.vecs() {
		v.Collect(ch)
	}
}

func withLabel(base prometheus.Labels, key, value string) prometheus.Labels {
	out := make(prometheus.Labels, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
