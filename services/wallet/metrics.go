package wallet

import (
	"errors"

	"cashback-controlplane/pkg/errutil"

	"github.com/prometheus/client_golang/prometheus"
)

var mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "wallet_mutations_total",
	Help: "Wallet ledger calls by direction and outcome.",
}, []string{"direction", "outcome"})

func registerMetrics() error {
	if err := prometheus.Register(mutations); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}
	return nil
}

func observe(direction string, res *Result, err error) {
	outcome := "applied"
	switch {
	case err != nil:
		outcome = errutil.ReasonOf(err)
		if outcome == "" {
			outcome = "error"
		}
	case res != nil && res.Replayed:
		outcome = "replayed"
	}
	mutations.WithLabelValues(direction, outcome).Inc()
}
