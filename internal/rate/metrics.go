package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	remainingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mivac_rate_limit_remaining",
			Help: "Remaining device calls in the rate-limit window",
		},
		[]string{"device_id", "window"},
	)
	blockedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mivac_rate_limit_blocked_total",
			Help: "Device calls refused by the rate-limit guard",
		},
		[]string{"device_id", "reason"},
	)
)

// MetricsCollectors exposes shared rate-limit collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		remainingGauge,
		blockedCounter,
	}
}
