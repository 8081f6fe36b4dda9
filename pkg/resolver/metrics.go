package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrate_resolver_resolutions_total",
		Help: "Coin resolutions by outcome status",
	}, []string{"status"})

	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrate_resolver_reconciliations_total",
		Help: "Catalog write-backs of live market data by result",
	}, []string{"result"})

	fiatFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinrate_resolver_fiat_fallbacks_total",
		Help: "Times the static USD-only fiat table was used",
	})
)
