package realtime

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	subscribers prometheus.Gauge
	published   *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	panics      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_subscribers",
			Help: "Currently registered realtime subscribers.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Events published to the hub.",
		}, []string{"type"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_delivered_total",
			Help: "Events written to stream connections.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Events dropped because a connection buffer was full.",
		}, []string{"type"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_subscriber_panics_total",
			Help: "Recovered subscriber panics.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.subscribers, m.published, m.delivered, m.dropped, m.panics)
	}
	return m
}
