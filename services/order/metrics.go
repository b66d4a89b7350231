package order

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "order_transitions_total",
	Help: "Committed workflow transitions by source and target state.",
}, []string{"from", "to"})

func registerMetrics() error {
	if err := prometheus.Register(transitionsTotal); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}
	return nil
}
